package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Result is a generated report.
type Result struct {
	PDF         []byte
	Pages       int
	GeneratedAt time.Time
}

// Generator runs the full generation pipeline. It holds only immutable
// configuration and is safe for concurrent use; every call works on its own
// document, page manager and backend.
type Generator struct {
	cfg        Config
	newBackend BackendFactory
	now        func() time.Time
	logger     zerolog.Logger
	metrics    *Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock fixes the generation clock, e.g. for reproducible output.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithBackend replaces the fpdf backend.
func WithBackend(f BackendFactory) Option {
	return func(g *Generator) { g.newBackend = f }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a Generator. cfg should already be validated.
func NewGenerator(cfg Config, opts ...Option) *Generator {
	g := &Generator{
		cfg:        cfg,
		newBackend: NewPDFBackend,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the generator configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Generate produces the PDF for in. On failure it returns a
// *GenerationError and no bytes; errors.Is distinguishes ErrInput,
// ErrMeasurement and ErrRender. There is no retry: callers re-invoke with
// the same input.
//
// ctx is only consulted before work starts; the layout pass itself runs to
// completion.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, stage, err := g.generate(in)
	elapsed := time.Since(start)

	if err != nil {
		g.metrics.ObserveFailure(elapsed.Seconds(), stage)
		g.logger.Error().Err(err).
			Str("stage", stage).
			Str("consultation_id", consultationID(in)).
			Msg("report generation failed")
		return nil, &GenerationError{Stage: stage, Err: err}
	}

	g.metrics.ObserveSuccess(elapsed.Seconds(), res.Pages, len(res.PDF))
	g.logger.Debug().
		Str("consultation_id", consultationID(in)).
		Int("pages", res.Pages).
		Int("bytes", len(res.PDF)).
		Dur("elapsed", elapsed).
		Msg("report generated")
	return res, nil
}

func (g *Generator) generate(in Input) (*Result, string, error) {
	if err := in.Validate(); err != nil {
		return nil, StageInput, err
	}
	generatedAt := g.now().In(g.cfg.location())

	doc, err := BuildDocument(in, g.cfg)
	if err != nil {
		return nil, StageBuild, err
	}

	backend, err := g.newBackend(g.cfg, generatedAt)
	if err != nil {
		return nil, StageRender, err
	}

	// Pass 1: content.
	pages, err := Layout(doc, g.cfg.Geometry, backend)
	if err != nil {
		return nil, StageLayout, err
	}

	// Pass 2: footers, now that the page count is known.
	if err := StampFooters(pages, g.cfg.Geometry, g.cfg.Styles.Footer, backend, generatedAt); err != nil {
		return nil, StageFooter, err
	}

	data, err := backend.Render(pages, g.documentInfo(in))
	if err != nil {
		return nil, StageRender, err
	}
	if len(data) == 0 {
		return nil, StageRender, fmt.Errorf("%w: empty output", ErrRender)
	}

	return &Result{PDF: data, Pages: len(pages), GeneratedAt: generatedAt}, "", nil
}

func (g *Generator) documentInfo(in Input) DocumentInfo {
	info := DocumentInfo{
		Title:   ReportTitle,
		Subject: in.Patient.FullName(),
		Author:  in.Consultation.ClinicianName,
		Creator: g.cfg.GeneratorName,
	}
	if !in.Consultation.Date.IsZero() {
		info.Title = fmt.Sprintf("%s - %s", ReportTitle, in.Consultation.Date.In(g.cfg.location()).Format(dateLayout))
	}
	return info
}

func consultationID(in Input) string {
	if in.Consultation == nil {
		return ""
	}
	return in.Consultation.ID
}
