package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// DocumentInfo is the metadata written into the PDF information dictionary.
type DocumentInfo struct {
	Title   string
	Subject string
	Author  string
	Creator string
}

// Backend measures text and renders laid-out pages into document bytes.
type Backend interface {
	TextMetrics
	Render(pages []Page, info DocumentInfo) ([]byte, error)
}

// BackendFactory creates a fresh Backend for one generation. generatedAt is
// used for any timestamps the output format embeds.
type BackendFactory func(cfg Config, generatedAt time.Time) (Backend, error)

// PDFBackend renders with fpdf using the standard (core) PDF fonts. Text is
// measured with the same font tables that are used for drawing, so the
// layout matches the output exactly.
//
// A PDFBackend holds a single fpdf document and must not be shared between
// generations.
type PDFBackend struct {
	pdf         *fpdf.Fpdf
	family      string
	lineSpacing float64
	rendered    bool
}

// NewPDFBackend is the default BackendFactory.
func NewPDFBackend(cfg Config, generatedAt time.Time) (Backend, error) {
	g := cfg.Geometry
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: g.PageWidth, Ht: g.PageHeight},
	})
	pdf.SetMargins(g.MarginLeft, g.MarginTop, g.MarginRight)
	// Page breaks are decided by Layout, never by fpdf.
	pdf.SetAutoPageBreak(false, g.MarginBottom)
	pdf.SetCellMargin(0)
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	pdf.SetCatalogSort(true)
	pdf.SetFont(cfg.FontFamily, "", cfg.Styles.Body.FontSize)
	if pdf.Err() {
		return nil, fmt.Errorf("%w: %v", ErrRender, pdf.Error())
	}

	return &PDFBackend{
		pdf:         pdf,
		family:      cfg.FontFamily,
		lineSpacing: cfg.LineSpacing,
	}, nil
}

// Measure returns the width of text in points and the line height for the
// style's font size.
func (b *PDFBackend) Measure(text string, style Style) (Extent, error) {
	if !utf8.ValidString(text) {
		return Extent{}, fmt.Errorf("text is not valid UTF-8")
	}
	if style.FontSize <= 0 {
		return Extent{}, fmt.Errorf("font size %.2f is not positive", style.FontSize)
	}
	b.setFont(style)
	w := b.pdf.GetStringWidth(winAnsi(text))
	if b.pdf.Err() {
		return Extent{}, b.pdf.Error()
	}
	return Extent{Width: w, LineHeight: style.FontSize * b.lineSpacing}, nil
}

// Render draws every page and returns the PDF bytes. A backend renders once.
func (b *PDFBackend) Render(pages []Page, info DocumentInfo) ([]byte, error) {
	if b.rendered {
		return nil, fmt.Errorf("%w: backend already rendered", ErrRender)
	}
	b.rendered = true

	pdf := b.pdf
	pdf.SetTitle(info.Title, true)
	pdf.SetSubject(info.Subject, true)
	pdf.SetAuthor(info.Author, true)
	pdf.SetCreator(info.Creator, true)

	for _, p := range pages {
		pdf.AddPage()
		for _, pl := range p.Placements {
			b.draw(pl)
		}
		if f := p.Footer; f != nil {
			b.setFont(f.Style)
			pdf.SetTextColor(110, 110, 110)
			pdf.SetXY(f.X, f.Y)
			pdf.CellFormat(f.Width, f.Height, winAnsi(f.Text), "", 0, "C", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func (b *PDFBackend) draw(pl Placement) {
	pdf := b.pdf
	pdf.SetXY(pl.X, pl.Y)

	if pl.Kind == KindLabelValue {
		label := winAnsi(pl.Label + ": ")
		b.setFont(labelStyle(pl.Style))
		lw := pdf.GetStringWidth(label)
		pdf.CellFormat(lw, pl.Height, label, "", 0, "L", false, 0, "")
		b.setFont(valueStyle(pl.Style))
		pdf.CellFormat(0, pl.Height, winAnsi(pl.Text), "", 0, "L", false, 0, "")
		return
	}

	b.setFont(pl.Style)
	if pl.Kind == KindTitle && pl.Style.Bold {
		pdf.SetTextColor(20, 50, 90)
		defer pdf.SetTextColor(0, 0, 0)
	}
	pdf.CellFormat(pl.Width, pl.Height, winAnsi(pl.Text), "", 0, "L", false, 0, "")
}

func (b *PDFBackend) setFont(style Style) {
	weight := ""
	if style.Bold {
		weight = "B"
	}
	b.pdf.SetFont(b.family, weight, style.FontSize)
}

// winAnsi converts UTF-8 text to the Windows-1252 bytes expected by the core
// PDF fonts. Text is composed to NFC first so that decomposed accents map to
// their precomposed code points; runes outside the code page become '?'.
func winAnsi(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}
