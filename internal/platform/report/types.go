// Package report composes printable clinical consultation reports.
//
// Generation is two-pass. BuildDocument maps the patient, consultation and
// transcript records into an ordered Document of blocks; Layout places those
// blocks onto pages through a PageManager, reflowing paragraphs into lines;
// StampFooters then writes "Page i of N" into the reserved bottom margin once
// the page count is known. A Backend supplies text metrics and turns the
// finished pages into PDF bytes.
package report

import "strings"

// Style is the explicit typographic attribute carried by every block. It
// replaces any notion of a "current font" on the drawing surface.
type Style struct {
	FontSize   float64 `json:"font_size"`
	Bold       bool    `json:"bold,omitempty"`
	SpaceAfter float64 `json:"space_after,omitempty"`
}

// Extent is the measured size of a single line of text.
type Extent struct {
	Width      float64
	LineHeight float64
}

// TextMetrics measures rendered text. Implementations must be deterministic
// for identical arguments.
type TextMetrics interface {
	Measure(text string, style Style) (Extent, error)
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

// Block is one unit of document content before placement. The concrete
// variants are TitleBlock, LabelValueBlock and ParagraphBlock.
type Block interface {
	block()
}

// TitleBlock is a single fixed-height line, used for headings and segment
// metadata lines.
type TitleBlock struct {
	Text  string
	Style Style
}

// LabelValueBlock is a single "Label: value" line.
type LabelValueBlock struct {
	Label string
	Value string
	Style Style
}

// ParagraphBlock is free text whose height is only known after reflow.
type ParagraphBlock struct {
	Text  string
	Style Style
}

func (TitleBlock) block()      {}
func (LabelValueBlock) block() {}
func (ParagraphBlock) block()  {}

// labelStyle and valueStyle are the two weights of a label-value row.
func labelStyle(s Style) Style {
	s.Bold = true
	return s
}

func valueStyle(s Style) Style {
	s.Bold = false
	return s
}

// Text returns the rendered single-line form of the block.
func (b LabelValueBlock) Text() string {
	return b.Label + ": " + b.Value
}

// Section is a titled group of blocks. Its first block is the section heading.
type Section struct {
	Title  string
	Blocks []Block
}

// Document is the ordered list of sections of one report.
type Document struct {
	Sections []Section
}

// Blocks flattens the document into the order the layout pass consumes.
func (d *Document) Blocks() []Block {
	var out []Block
	for _, s := range d.Sections {
		out = append(out, s.Blocks...)
	}
	return out
}

// Section returns the section with the given title.
func (d *Document) Section(title string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return Section{}, false
}

// ---------------------------------------------------------------------------
// Placed output
// ---------------------------------------------------------------------------

// Line is one reflowed slice of a paragraph.
type Line struct {
	Text   string
	Width  float64
	Height float64
}

// PlacementKind identifies what a Placement was produced from.
type PlacementKind int

const (
	KindTitle PlacementKind = iota
	KindLabelValue
	KindLine
)

func (k PlacementKind) String() string {
	switch k {
	case KindTitle:
		return "title"
	case KindLabelValue:
		return "label-value"
	case KindLine:
		return "line"
	default:
		return "unknown"
	}
}

// Placement is a unit positioned on a page. Coordinates are in points from
// the top-left corner of the page.
type Placement struct {
	Kind   PlacementKind
	Label  string // label-value only
	Text   string
	X      float64
	Y      float64
	Width  float64
	Height float64
	Style  Style
}

// Bottom is the lower edge of the placement.
func (p Placement) Bottom() float64 {
	return p.Y + p.Height
}

// Content is the full text drawn for the placement.
func (p Placement) Content() string {
	if p.Kind == KindLabelValue {
		return p.Label + ": " + p.Text
	}
	return p.Text
}

// Footer is the text written into a page's bottom margin.
type Footer struct {
	Text   string
	X      float64
	Y      float64
	Width  float64
	Height float64
	Style  Style
}

// Page is a numbered page with its placed content.
type Page struct {
	Number     int
	Placements []Placement
	Footer     *Footer
}

// Text joins every placement on the page, one per line. Useful for
// assertions and debugging.
func (p Page) Text() string {
	var b strings.Builder
	for i, pl := range p.Placements {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pl.Content())
	}
	return b.String()
}
