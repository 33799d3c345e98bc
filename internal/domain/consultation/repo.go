package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a concurrent write that lost, e.g. two segment
	// appends racing for the same sequence number.
	ErrConflict = errors.New("conflicting write")
)

type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateConsultation(ctx context.Context, c *Consultation) error
	GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error)
	UpdateConsultation(ctx context.Context, c *Consultation) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)

	// Segments come back ordered by recorded time, then sequence.
	AppendSegment(ctx context.Context, s *TranscriptSegment) error
	ListSegments(ctx context.Context, consultationID uuid.UUID) ([]*TranscriptSegment, error)
}
