package consultation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is a Repository kept in process memory. It backs the server
// when no database is configured.
type MemoryRepo struct {
	mu            sync.RWMutex
	patients      map[uuid.UUID]Patient
	consultations map[uuid.UUID]Consultation
	segments      map[uuid.UUID][]TranscriptSegment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		patients:      make(map[uuid.UUID]Patient),
		consultations: make(map[uuid.UUID]Consultation),
		segments:      make(map[uuid.UUID][]TranscriptSegment),
	}
}

func (m *MemoryRepo) CreatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.MRN != nil {
		for _, other := range m.patients {
			if other.MRN != nil && *other.MRN == *p.MRN {
				return ErrConflict
			}
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = *p
	return nil
}

func (m *MemoryRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepo) CreateConsultation(_ context.Context, c *Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[c.PatientID]; !ok {
		return ErrNotFound
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.consultations[c.ID] = *c
	return nil
}

func (m *MemoryRepo) GetConsultation(_ context.Context, id uuid.UUID) (*Consultation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.consultations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryRepo) UpdateConsultation(_ context.Context, c *Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.consultations[c.ID]
	if !ok {
		return ErrNotFound
	}
	c.PatientID = existing.PatientID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	m.consultations[c.ID] = *c
	return nil
}

func (m *MemoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	m.mu.RLock()
	var all []*Consultation
	for _, c := range m.consultations {
		if c.PatientID == patientID {
			c := c
			all = append(all, &c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepo) AppendSegment(_ context.Context, s *TranscriptSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.consultations[s.ConsultationID]; !ok {
		return ErrNotFound
	}
	s.ID = uuid.New()
	s.Seq = len(m.segments[s.ConsultationID]) + 1
	s.CreatedAt = time.Now().UTC()
	m.segments[s.ConsultationID] = append(m.segments[s.ConsultationID], *s)
	return nil
}

func (m *MemoryRepo) ListSegments(_ context.Context, consultationID uuid.UUID) ([]*TranscriptSegment, error) {
	m.mu.RLock()
	stored := m.segments[consultationID]
	out := make([]*TranscriptSegment, len(stored))
	for i := range stored {
		s := stored[i]
		out[i] = &s
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}
