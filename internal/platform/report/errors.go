package report

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrInput means a mandatory record (patient or consultation) is missing.
	ErrInput = errors.New("report: invalid input")
	// ErrMeasurement means the text metrics capability failed.
	ErrMeasurement = errors.New("report: text measurement failed")
	// ErrRender means the backend could not produce the document bytes.
	ErrRender = errors.New("report: render failed")
	// ErrAlreadyStamped is returned when footers are stamped twice.
	ErrAlreadyStamped = errors.New("report: footers already stamped")
	// ErrSourceNotFound is returned by input fetchers when the consultation
	// or its patient does not exist.
	ErrSourceNotFound = errors.New("report: source record not found")
)

// MeasureError records the text whose measurement failed. Text is clinical
// content and is kept out of Error, which ends up in logs.
type MeasureError struct {
	Text string
	Err  error
}

func (e *MeasureError) Error() string {
	return fmt.Sprintf("measure text of %d runes: %v", utf8.RuneCountInString(e.Text), e.Err)
}

func (e *MeasureError) Unwrap() error { return e.Err }

func (e *MeasureError) Is(target error) bool { return target == ErrMeasurement }

// Generation stages, in execution order.
const (
	StageInput  = "input"
	StageBuild  = "build"
	StageLayout = "layout"
	StageFooter = "footer"
	StageRender = "render"
)

// GenerationError is the single error surfaced by Generator.Generate.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("report generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// measure wraps metrics failures so that callers can match ErrMeasurement.
func measure(m TextMetrics, text string, style Style) (Extent, error) {
	ext, err := m.Measure(text, style)
	if err != nil {
		return Extent{}, &MeasureError{Text: text, Err: err}
	}
	return ext, nil
}
