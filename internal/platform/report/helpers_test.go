package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// monoMetrics measures every rune as half the font size wide. Bold has no
// effect.
type monoMetrics struct {
	lineSpacing float64
	calls       int
}

func newMono() *monoMetrics { return &monoMetrics{lineSpacing: 1.25} }

func (m *monoMetrics) Measure(text string, style Style) (Extent, error) {
	m.calls++
	return Extent{
		Width:      float64(utf8.RuneCountInString(text)) * style.FontSize * 0.5,
		LineHeight: style.FontSize * m.lineSpacing,
	}, nil
}

// failingMetrics fails once it has been called more than okCalls times.
type failingMetrics struct {
	okCalls int
	calls   int
}

var errFontTable = errors.New("font table unavailable")

func (m *failingMetrics) Measure(text string, style Style) (Extent, error) {
	m.calls++
	if m.calls > m.okCalls {
		return Extent{}, errFontTable
	}
	return newMono().Measure(text, style)
}

// textBackend renders pages as plain text so tests can inspect the output.
type textBackend struct {
	*monoMetrics
	renderErr error
}

func newTextBackend(Config, time.Time) (Backend, error) {
	return &textBackend{monoMetrics: newMono()}, nil
}

func (b *textBackend) Render(pages []Page, info DocumentInfo) ([]byte, error) {
	if b.renderErr != nil {
		return nil, b.renderErr
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "title=%s\n", info.Title)
	for _, p := range pages {
		fmt.Fprintf(&sb, "--- page %d\n%s\n", p.Number, p.Text())
		if p.Footer != nil {
			fmt.Fprintf(&sb, "footer: %s\n", p.Footer.Text)
		}
	}
	return []byte(sb.String()), nil
}

func repeatWords(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func testTime() time.Time {
	return time.Date(2024, 3, 14, 15, 4, 5, 0, time.UTC)
}

func testInput() Input {
	birth := time.Date(1980, 7, 1, 0, 0, 0, 0, time.UTC)
	return Input{
		Patient: &PatientSummary{
			ID:        "p-1",
			MRN:       "MRN-0042",
			FirstName: "Ada",
			LastName:  "Lovelace",
			BirthDate: &birth,
			Gender:    "female",
			Phone:     "+1 555 0100",
		},
		Consultation: &ConsultationSummary{
			ID:              "c-1",
			Date:            time.Date(2024, 3, 14, 14, 0, 0, 0, time.UTC),
			Type:            "follow_up",
			Status:          "completed",
			DurationMinutes: 25,
			ChiefComplaint:  "Intermittent headaches for two weeks.",
			Diagnosis:       "Tension-type headache.",
			TreatmentPlan:   "Hydration, sleep hygiene, ibuprofen as needed.",
			ClinicianName:   "Dr. Grace Hopper",
		},
	}
}
