package artifact

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type stored struct {
	meta    Metadata
	content []byte
}

// MemoryStore is a thread-safe in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*stored
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*stored)}
}

func (s *MemoryStore) Save(_ context.Context, meta Metadata, content []byte) (*Metadata, error) {
	meta, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	meta.ID = uuid.New().String()
	meta.CreatedAt = time.Now().UTC()

	data := make([]byte, len(content))
	copy(data, content)

	s.mu.Lock()
	s.items[meta.ID] = &stored{meta: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := item.meta
	return io.NopCloser(bytes.NewReader(item.content)), &meta, nil
}

func (s *MemoryStore) GetMetadata(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	meta := item.meta
	return &meta, nil
}

// ListByConsultation returns the newest documents first.
func (s *MemoryStore) ListByConsultation(_ context.Context, consultationID string, limit, offset int) ([]*Metadata, int, error) {
	s.mu.RLock()
	var matched []*Metadata
	for _, item := range s.items {
		if item.meta.ConsultationID == consultationID {
			meta := item.meta
			matched = append(matched, &meta)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start, end := window(len(matched), limit, offset)
	return matched[start:end], len(matched), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}
