package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicreport/internal/platform/report"
)

// ErrValidation marks a request the caller must correct.
var ErrValidation = errors.New("validation failed")

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" && p.LastName == "" {
		return invalid("first_name or last_name is required")
	}
	if p.BirthDate != nil && p.BirthDate.After(s.now()) {
		return invalid("birth_date is in the future")
	}
	return s.repo.CreatePatient(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) ListConsultationsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func validateConsultation(c *Consultation) error {
	if c.Status == "" {
		c.Status = StatusInProgress
	}
	if !validStatuses[c.Status] {
		return invalid("invalid status: %s", c.Status)
	}
	if c.Type != nil && !validTypes[*c.Type] {
		return invalid("invalid type: %s", *c.Type)
	}
	if c.DurationMinutes != nil && *c.DurationMinutes < 0 {
		return invalid("duration_minutes must not be negative")
	}
	return nil
}

func (s *Service) CreateConsultation(ctx context.Context, c *Consultation) error {
	if c.PatientID == uuid.Nil {
		return invalid("patient_id is required")
	}
	if err := validateConsultation(c); err != nil {
		return err
	}
	if c.Date.IsZero() {
		c.Date = s.now().UTC()
	}
	if err := s.repo.CreateConsultation(ctx, c); err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid("patient %s does not exist", c.PatientID)
		}
		return err
	}
	return nil
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetConsultation(ctx, id)
}

// UpdateConsultation replaces the editable fields of an existing
// consultation. Patient ownership never changes.
func (s *Service) UpdateConsultation(ctx context.Context, c *Consultation) error {
	if err := validateConsultation(c); err != nil {
		return err
	}
	existing, err := s.repo.GetConsultation(ctx, c.ID)
	if err != nil {
		return err
	}
	c.PatientID = existing.PatientID
	if c.Date.IsZero() {
		c.Date = existing.Date
	}
	return s.repo.UpdateConsultation(ctx, c)
}

func (s *Service) AppendSegment(ctx context.Context, seg *TranscriptSegment) error {
	seg.Text = strings.TrimSpace(seg.Text)
	if seg.Text == "" {
		return invalid("text is required")
	}
	if seg.Confidence < 0 || seg.Confidence > 1 {
		return invalid("confidence must be between 0 and 1")
	}
	if seg.WordCount <= 0 {
		seg.WordCount = countWords(seg.Text)
	}
	if seg.RecordedAt.IsZero() {
		seg.RecordedAt = s.now().UTC()
	}
	return s.repo.AppendSegment(ctx, seg)
}

func (s *Service) ListSegments(ctx context.Context, consultationID uuid.UUID) ([]*TranscriptSegment, error) {
	if _, err := s.repo.GetConsultation(ctx, consultationID); err != nil {
		return nil, err
	}
	return s.repo.ListSegments(ctx, consultationID)
}

// FetchReportInput assembles the patient, consultation and transcript a
// report is generated from. Unknown or malformed ids wrap
// report.ErrSourceNotFound.
func (s *Service) FetchReportInput(ctx context.Context, consultationID string) (*report.Input, error) {
	id, err := uuid.Parse(consultationID)
	if err != nil {
		return nil, fmt.Errorf("consultation %q: %w", consultationID, report.ErrSourceNotFound)
	}

	c, err := s.repo.GetConsultation(ctx, id)
	if err != nil {
		return nil, sourceErr("consultation", id, err)
	}
	p, err := s.repo.GetPatient(ctx, c.PatientID)
	if err != nil {
		return nil, sourceErr("patient", c.PatientID, err)
	}
	segs, err := s.repo.ListSegments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list segments for %s: %w", id, err)
	}

	in := &report.Input{
		Patient:      p.ToSummary(),
		Consultation: c.ToSummary(),
		Segments:     make([]report.TranscriptSegment, 0, len(segs)),
	}
	for _, seg := range segs {
		in.Segments = append(in.Segments, seg.ToReport())
	}
	return in, nil
}

func sourceErr(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, report.ErrSourceNotFound)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}
