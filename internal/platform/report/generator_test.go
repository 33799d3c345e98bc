package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func fixedClock() func() time.Time {
	return func() time.Time { return testTime() }
}

func newTestGenerator(opts ...Option) *Generator {
	opts = append([]Option{WithClock(fixedClock()), WithBackend(newTextBackend)}, opts...)
	return NewGenerator(DefaultConfig(), opts...)
}

// layoutPipeline runs both passes the way Generate does and returns the
// stamped pages.
func layoutPipeline(t *testing.T, in Input, cfg Config) []Page {
	t.Helper()
	doc, err := BuildDocument(in, cfg)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	m := newMono()
	pages, err := Layout(doc, cfg.Geometry, m)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if err := StampFooters(pages, cfg.Geometry, cfg.Styles.Footer, m, testTime()); err != nil {
		t.Fatalf("StampFooters: %v", err)
	}
	return pages
}

func TestGenerate_ShortConsultationFitsOnePage(t *testing.T) {
	pages := layoutPipeline(t, testInput(), DefaultConfig())
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if !strings.HasSuffix(pages[0].Footer.Text, "Page 1 of 1") {
		t.Errorf("unexpected footer %q", pages[0].Footer.Text)
	}
	text := pages[0].Text()
	if strings.Contains(text, SectionTranscriptions) || strings.Contains(text, SectionNotes) {
		t.Errorf("unexpected empty sections in output:\n%s", text)
	}
	for _, s := range []string{ReportTitle, SectionPatient, SectionConsultation, SectionDiagnosisTreatment} {
		if !strings.Contains(text, s) {
			t.Errorf("expected %q in output", s)
		}
	}
}

func TestGenerate_TranscriptSpillsOntoSecondPage(t *testing.T) {
	in := testInput()
	in.Consultation.Diagnosis = ""
	in.Consultation.TreatmentPlan = ""
	in.Segments = []TranscriptSegment{
		{Text: repeatWords("alpha", 150), Confidence: 0.9, Timestamp: testTime()},
		{Text: repeatWords("bravo", 300), Confidence: 0.8, Timestamp: testTime().Add(time.Minute)},
	}
	cfg := DefaultConfig()
	pages := layoutPipeline(t, in, cfg)

	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	for i, p := range pages {
		want := fmt.Sprintf("Page %d of 2", i+1)
		if !strings.HasSuffix(p.Footer.Text, want) {
			t.Errorf("page %d: expected footer ending %q, got %q", i+1, want, p.Footer.Text)
		}
	}

	first := pages[0].Placements
	last := first[len(first)-1]
	if last.Kind != KindLine || !strings.HasPrefix(last.Text, "bravo") {
		t.Errorf("expected page 1 to be filled with the second segment, last is %q", last.Content())
	}
	if !strings.Contains(pages[0].Text(), "Segment 2 - ") {
		t.Error("expected the second segment to start on page 1")
	}

	cont := pages[1].Placements[0]
	if cont.Kind != KindLine || !strings.HasPrefix(cont.Text, "bravo") || cont.Y != cfg.Geometry.MarginTop {
		t.Errorf("expected the second segment to continue at the top of page 2, got %+v", cont)
	}
	bravo := 0
	for _, p := range pages {
		for _, pl := range p.Placements {
			if pl.Bottom() > cfg.Geometry.PrintableBottom() {
				t.Errorf("page %d: placement crosses the printable bottom", p.Number)
			}
			if pl.Kind == KindLine && strings.HasPrefix(pl.Text, "bravo") {
				bravo += len(strings.Fields(pl.Text))
			}
		}
	}
	if bravo != 300 {
		t.Errorf("expected all 300 words of segment 2 to be placed, got %d", bravo)
	}
}

func TestGenerate_OverWideWord(t *testing.T) {
	in := testInput()
	word := strings.Repeat("W", 200)
	in.Consultation.Notes = word
	pages := layoutPipeline(t, in, DefaultConfig())

	found := false
	for _, p := range pages {
		for _, pl := range p.Placements {
			if pl.Text == word {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected the over-wide word on a line of its own, unmodified")
	}
}

func TestGenerate_AlwaysAtLeastOnePage(t *testing.T) {
	g := newTestGenerator()
	res, err := g.Generate(context.Background(), Input{Patient: &PatientSummary{}, Consultation: &ConsultationSummary{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Pages < 1 {
		t.Errorf("expected at least one page, got %d", res.Pages)
	}
	if !bytes.Contains(res.PDF, []byte("Page 1 of 1")) {
		t.Errorf("expected footer in output:\n%s", res.PDF)
	}
}

func TestGenerate_Success(t *testing.T) {
	g := newTestGenerator()
	res, err := g.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.GeneratedAt.Equal(testTime()) {
		t.Errorf("expected generation time from the clock, got %v", res.GeneratedAt)
	}
	if !bytes.Contains(res.PDF, []byte("title=Consultation Report - Mar 14, 2024")) {
		t.Errorf("expected document info title, got:\n%s", res.PDF)
	}
}

func TestGenerate_MissingPatient(t *testing.T) {
	g := newTestGenerator()
	in := testInput()
	in.Patient = nil

	res, err := g.Generate(context.Background(), in)
	if res != nil {
		t.Error("expected no result")
	}
	if !errors.Is(err, ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Stage != StageInput {
		t.Errorf("expected input stage, got %v", err)
	}
}

func TestGenerate_MeasurementFailure(t *testing.T) {
	factory := func(Config, time.Time) (Backend, error) {
		return &failingBackend{failingMetrics{okCalls: 3}}, nil
	}
	g := newTestGenerator(WithBackend(factory))

	res, err := g.Generate(context.Background(), testInput())
	if res != nil {
		t.Error("expected no partial output")
	}
	if !errors.Is(err, ErrMeasurement) {
		t.Fatalf("expected ErrMeasurement, got %v", err)
	}
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Stage != StageLayout {
		t.Errorf("expected layout stage, got %v", err)
	}
}

func TestGenerate_RenderFailure(t *testing.T) {
	factory := func(Config, time.Time) (Backend, error) {
		return &textBackend{monoMetrics: newMono(), renderErr: fmt.Errorf("%w: disk full", ErrRender)}, nil
	}
	g := newTestGenerator(WithBackend(factory))

	_, err := g.Generate(context.Background(), testInput())
	if !errors.Is(err, ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Stage != StageRender {
		t.Errorf("expected render stage, got %v", err)
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestGenerator().Generate(ctx, testInput()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGenerate_RetryAfterFailure(t *testing.T) {
	calls := 0
	factory := func(cfg Config, at time.Time) (Backend, error) {
		calls++
		if calls == 1 {
			return &failingBackend{failingMetrics{okCalls: 0}}, nil
		}
		return newTextBackend(cfg, at)
	}
	g := newTestGenerator(WithBackend(factory))

	if _, err := g.Generate(context.Background(), testInput()); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	if _, err := g.Generate(context.Background(), testInput()); err != nil {
		t.Fatalf("expected a fresh attempt to succeed, got %v", err)
	}
}

func TestGenerate_ConcurrentCalls(t *testing.T) {
	g := newTestGenerator()
	want, err := g.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := g.Generate(context.Background(), testInput())
			if err == nil && !bytes.Equal(res.PDF, want.PDF) {
				err = errors.New("output differs between concurrent generations")
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}

func TestGenerate_PDFIsReproducible(t *testing.T) {
	in := testInput()
	in.Consultation.Notes = "Patient asked about café hours; résumé attached."
	in.Segments = []TranscriptSegment{
		{Text: repeatWords("The patient describes the pain as dull and bilateral.", 20), Confidence: 0.93, Timestamp: testTime()},
	}
	g := NewGenerator(DefaultConfig(), WithClock(fixedClock()))

	a, err := g.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("first generation: %v", err)
	}
	b, err := g.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}
	if !bytes.HasPrefix(a.PDF, []byte("%PDF-")) {
		t.Errorf("expected a PDF document, got %q", a.PDF[:min(16, len(a.PDF))])
	}
	if !bytes.Equal(a.PDF, b.PDF) {
		t.Error("expected byte-identical output for identical input and clock")
	}
}

func TestGenerate_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	g := newTestGenerator(WithLogger(zerolog.New(&buf)))
	in := testInput()
	in.Consultation = nil

	g.Generate(context.Background(), in)
	out := buf.String()
	if !strings.Contains(out, `"stage":"input"`) || !strings.Contains(out, "report generation failed") {
		t.Errorf("expected failure log with stage, got %s", out)
	}
}

// utf8Metrics rejects invalid UTF-8 the way the PDF backend does.
type utf8Metrics struct{ *monoMetrics }

func (m utf8Metrics) Measure(text string, style Style) (Extent, error) {
	if !utf8.ValidString(text) {
		return Extent{}, errors.New("text is not valid UTF-8")
	}
	return m.monoMetrics.Measure(text, style)
}

type utf8Backend struct{ utf8Metrics }

func (utf8Backend) Render([]Page, DocumentInfo) ([]byte, error) {
	return nil, errors.New("not reached")
}

func TestGenerate_FailureLogOmitsClinicalText(t *testing.T) {
	var buf bytes.Buffer
	factory := func(Config, time.Time) (Backend, error) {
		return utf8Backend{utf8Metrics{newMono()}}, nil
	}
	g := newTestGenerator(WithBackend(factory), WithLogger(zerolog.New(&buf)))
	in := testInput()
	in.Consultation.Notes = "HIV positive, patient Ada \xff"

	_, err := g.Generate(context.Background(), in)
	if !errors.Is(err, ErrMeasurement) {
		t.Fatalf("expected ErrMeasurement, got %v", err)
	}
	var me *MeasureError
	if !errors.As(err, &me) || !strings.Contains(me.Text, "\xff") {
		t.Errorf("MeasureError should keep the failing text for callers, got %+v", me)
	}

	out := buf.String()
	if !strings.Contains(out, "report generation failed") {
		t.Fatalf("expected a failure log, got %s", out)
	}
	for _, phi := range []string{"HIV", "Ada", "positive"} {
		if strings.Contains(out, phi) || strings.Contains(err.Error(), phi) {
			t.Errorf("clinical text %q leaked: log=%s err=%v", phi, out, err)
		}
	}
}

func TestGenerate_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := newTestGenerator(WithMetrics(NewMetrics(reg)))

	g.Generate(context.Background(), testInput())
	bad := testInput()
	bad.Patient = nil
	g.Generate(context.Background(), bad)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "clinicreport_report_generations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := ""
			for _, lp := range m.GetLabel() {
				key += lp.GetName() + "=" + lp.GetValue() + ","
			}
			counts[key] = m.GetCounter().GetValue()
		}
	}
	if counts["outcome=success,stage=,"] != 1 {
		t.Errorf("expected one success, got %v", counts)
	}
	if counts["outcome=failure,stage=input,"] != 1 {
		t.Errorf("expected one input failure, got %v", counts)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSuccess(1, 1, 1)
	m.ObserveFailure(1, StageRender)
}

type failingBackend struct {
	failingMetrics
}

func (b *failingBackend) Render([]Page, DocumentInfo) ([]byte, error) {
	return nil, errors.New("not reached")
}
