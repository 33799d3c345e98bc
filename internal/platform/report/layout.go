package report

import "fmt"

// Layout places every block of doc onto pages and returns them in order.
//
// Titles and label-value rows are measured once for their height; paragraphs
// are reflowed once at the content width and their lines placed one by one,
// so a paragraph may continue on the next page but a single line never
// straddles a page break. When a unit would cross the printable bottom a new
// page is started first, unless the current page is still empty, in which
// case the unit is placed anyway and allowed to overflow.
//
// Layout never writes into the bottom margin; that space is left for
// StampFooters.
func Layout(doc *Document, geom Geometry, m TextMetrics) ([]Page, error) {
	if doc == nil || len(doc.Sections) == 0 {
		return nil, fmt.Errorf("%w: document has no sections", ErrInput)
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	e := &layoutEngine{
		pm:      NewPageManager(geom),
		metrics: m,
		width:   geom.ContentWidth(),
	}
	e.pm.StartNewPage()

	for _, b := range doc.Blocks() {
		if err := e.place(b); err != nil {
			return nil, err
		}
	}
	return e.pm.Pages(), nil
}

type layoutEngine struct {
	pm      *PageManager
	metrics TextMetrics
	width   float64
}

func (e *layoutEngine) place(b Block) error {
	switch b := b.(type) {
	case TitleBlock:
		ext, err := measure(e.metrics, b.Text, b.Style)
		if err != nil {
			return err
		}
		e.placeUnit(Placement{
			Kind:   KindTitle,
			Text:   b.Text,
			Width:  ext.Width,
			Height: ext.LineHeight,
			Style:  b.Style,
		})

	case LabelValueBlock:
		ext, err := measureLabelValue(e.metrics, b)
		if err != nil {
			return err
		}
		e.placeUnit(Placement{
			Kind:   KindLabelValue,
			Label:  b.Label,
			Text:   b.Value,
			Width:  ext.Width,
			Height: ext.LineHeight,
			Style:  b.Style,
		})

	case ParagraphBlock:
		lines, err := Reflow(b.Text, e.width, b.Style, e.metrics)
		if err != nil {
			return err
		}
		for i, l := range lines {
			style := b.Style
			if i < len(lines)-1 {
				style.SpaceAfter = 0
			}
			e.placeUnit(Placement{
				Kind:   KindLine,
				Text:   l.Text,
				Width:  l.Width,
				Height: l.Height,
				Style:  style,
			})
		}

	default:
		return fmt.Errorf("report: unsupported block type %T", b)
	}
	return nil
}

// measureLabelValue measures the bold label and the value separately, the
// way the row is drawn.
func measureLabelValue(m TextMetrics, b LabelValueBlock) (Extent, error) {
	lext, err := measure(m, b.Label+": ", labelStyle(b.Style))
	if err != nil {
		return Extent{}, err
	}
	vext, err := measure(m, b.Value, valueStyle(b.Style))
	if err != nil {
		return Extent{}, err
	}
	return Extent{
		Width:      lext.Width + vext.Width,
		LineHeight: max(lext.LineHeight, vext.LineHeight),
	}, nil
}

func (e *layoutEngine) placeUnit(p Placement) {
	if !e.pm.Fits(p.Height) && !e.pm.PageEmpty() {
		e.pm.StartNewPage()
	}
	e.pm.Place(p)
}
