package report

import "strings"

// Reflow greedily wraps text into lines no wider than maxWidth.
//
// Words are split on any whitespace. A word is appended to the current line
// while the measured width of "line word" stays within maxWidth; otherwise
// the line is flushed and the word starts the next one. A single word wider
// than maxWidth becomes a line of its own, unmodified. Blank text yields no
// lines.
func Reflow(text string, maxWidth float64, style Style, m TextMetrics) ([]Line, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	current := words[0]
	ext, err := measure(m, current, style)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(words)/8+1)
	for _, word := range words[1:] {
		candidate := current + " " + word
		cext, err := measure(m, candidate, style)
		if err != nil {
			return nil, err
		}
		if cext.Width <= maxWidth {
			current, ext = candidate, cext
			continue
		}

		lines = append(lines, Line{Text: current, Width: ext.Width, Height: ext.LineHeight})
		current = word
		if ext, err = measure(m, current, style); err != nil {
			return nil, err
		}
	}
	lines = append(lines, Line{Text: current, Width: ext.Width, Height: ext.LineHeight})

	return lines, nil
}
