package report

import (
	"fmt"
	"time"
)

// FooterTimeLayout formats the generation timestamp in page footers.
const FooterTimeLayout = "Jan 2, 2006 15:04 MST"

// FooterText is the footer line of page i of n.
func FooterText(generatedAt time.Time, page, total int) string {
	return fmt.Sprintf("Generated %s - Page %d of %d", generatedAt.Format(FooterTimeLayout), page, total)
}

// StampFooters writes a centered footer into the bottom margin of every page.
// It must run once, after Layout has produced the final page list; the page
// count N in "Page i of N" is len(pages). Placements are left untouched.
func StampFooters(pages []Page, geom Geometry, style Style, m TextMetrics, generatedAt time.Time) error {
	for _, p := range pages {
		if p.Footer != nil {
			return fmt.Errorf("%w: page %d", ErrAlreadyStamped, p.Number)
		}
	}

	total := len(pages)
	footers := make([]*Footer, total)
	for i := range pages {
		text := FooterText(generatedAt, i+1, total)
		ext, err := measure(m, text, style)
		if err != nil {
			return err
		}

		y := geom.PrintableBottom()
		if slack := geom.MarginBottom - ext.LineHeight; slack > 0 {
			y += slack / 2
		}
		footers[i] = &Footer{
			Text:   text,
			X:      (geom.PageWidth - ext.Width) / 2,
			Y:      y,
			Width:  ext.Width,
			Height: ext.LineHeight,
			Style:  style,
		}
	}

	// Only attach once every footer measured successfully.
	for i := range pages {
		pages[i].Footer = footers[i]
	}
	return nil
}
