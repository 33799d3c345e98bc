package report

import (
	"fmt"
	"strings"
	"time"
)

// PaperSize is a page format in points (1" = 72pt).
type PaperSize struct {
	Name   string
	Width  float64
	Height float64
}

var (
	LetterSize = PaperSize{Name: "Letter", Width: 612, Height: 792}   // 8.5" x 11"
	LegalSize  = PaperSize{Name: "Legal", Width: 612, Height: 1008}   // 8.5" x 14"
	A4Size     = PaperSize{Name: "A4", Width: 595.28, Height: 841.89} // 210mm x 297mm
)

// PaperSizeByName resolves a case-insensitive paper size name.
func PaperSizeByName(name string) (PaperSize, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "letter", "":
		return LetterSize, true
	case "legal":
		return LegalSize, true
	case "a4":
		return A4Size, true
	}
	return PaperSize{}, false
}

// Geometry describes the page box and its margins, in points.
type Geometry struct {
	PageWidth    float64
	PageHeight   float64
	MarginTop    float64
	MarginBottom float64
	MarginLeft   float64
	MarginRight  float64
}

// NewGeometry builds a geometry with uniform side margins.
func NewGeometry(size PaperSize, top, bottom, left, right float64) Geometry {
	return Geometry{
		PageWidth:    size.Width,
		PageHeight:   size.Height,
		MarginTop:    top,
		MarginBottom: bottom,
		MarginLeft:   left,
		MarginRight:  right,
	}
}

// ContentWidth is the horizontal space available to blocks.
func (g Geometry) ContentWidth() float64 {
	return g.PageWidth - g.MarginLeft - g.MarginRight
}

// PrintableBottom is the lowest y a placed unit may reach. Everything below
// it belongs to the footer.
func (g Geometry) PrintableBottom() float64 {
	return g.PageHeight - g.MarginBottom
}

// PrintableHeight is the vertical space available to blocks on one page.
func (g Geometry) PrintableHeight() float64 {
	return g.PrintableBottom() - g.MarginTop
}

// Validate rejects geometries that leave no printable area.
func (g Geometry) Validate() error {
	if g.PageWidth <= 0 || g.PageHeight <= 0 {
		return fmt.Errorf("page size must be positive, got %.2fx%.2f", g.PageWidth, g.PageHeight)
	}
	if g.MarginTop < 0 || g.MarginBottom < 0 || g.MarginLeft < 0 || g.MarginRight < 0 {
		return fmt.Errorf("margins must not be negative")
	}
	if g.ContentWidth() <= 0 {
		return fmt.Errorf("left and right margins (%.2f + %.2f) exceed page width %.2f",
			g.MarginLeft, g.MarginRight, g.PageWidth)
	}
	if g.PrintableHeight() <= 0 {
		return fmt.Errorf("top and bottom margins (%.2f + %.2f) exceed page height %.2f",
			g.MarginTop, g.MarginBottom, g.PageHeight)
	}
	return nil
}

// Styles holds the base style of each kind of block.
type Styles struct {
	Title   Style // report title
	Heading Style // section headings
	Label   Style // label-value rows and field captions
	Body    Style // paragraphs
	Meta    Style // transcript segment metadata lines
	Footer  Style
}

// DefaultStyles returns the house styles of the consultation report.
func DefaultStyles() Styles {
	return Styles{
		Title:   Style{FontSize: 20, Bold: true, SpaceAfter: 4},
		Heading: Style{FontSize: 14, Bold: true, SpaceAfter: 6},
		Label:   Style{FontSize: 11, SpaceAfter: 2},
		Body:    Style{FontSize: 11, SpaceAfter: 8},
		Meta:    Style{FontSize: 9, Bold: true, SpaceAfter: 2},
		Footer:  Style{FontSize: 8},
	}
}

// Config is everything a Generator needs besides its input.
type Config struct {
	Geometry      Geometry
	Styles        Styles
	FontFamily    string
	LineSpacing   float64
	GeneratorName string
	Location      *time.Location
}

// DefaultConfig lays reports out on US Letter with 54pt (0.75") margins.
func DefaultConfig() Config {
	return Config{
		Geometry:      NewGeometry(LetterSize, 54, 54, 54, 54),
		Styles:        DefaultStyles(),
		FontFamily:    "Helvetica",
		LineSpacing:   1.25,
		GeneratorName: "Clinic Report Service",
		Location:      time.UTC,
	}
}

// Validate checks geometry and font settings.
func (c Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("report geometry: %w", err)
	}
	for _, s := range []struct {
		name  string
		style Style
	}{
		{"title", c.Styles.Title},
		{"heading", c.Styles.Heading},
		{"label", c.Styles.Label},
		{"body", c.Styles.Body},
		{"meta", c.Styles.Meta},
		{"footer", c.Styles.Footer},
	} {
		if s.style.FontSize <= 0 {
			return fmt.Errorf("report %s font size must be positive", s.name)
		}
	}
	if c.LineSpacing < 1 {
		return fmt.Errorf("report line spacing must be at least 1, got %.2f", c.LineSpacing)
	}
	if c.FontFamily == "" {
		return fmt.Errorf("report font family is required")
	}
	return nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
