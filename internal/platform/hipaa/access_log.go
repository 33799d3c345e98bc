package hipaa

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Resource types recorded in the access log.
const (
	ResourcePatient            = "patient"
	ResourceConsultation       = "consultation"
	ResourceTranscript         = "transcript"
	ResourceConsultationReport = "consultation_report"
	ResourceReportArtifact     = "report_artifact"
)

// AccessEntry records one request that disclosed or changed protected
// health information.
type AccessEntry struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name,omitempty"`
	Roles        []string  `json:"roles,omitempty"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Action       string    `json:"action"`
	Status       int       `json:"status"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	AccessedAt   time.Time `json:"accessed_at"`
}

// AccessFilter narrows List results. Empty fields match everything.
type AccessFilter struct {
	UserID       string
	ResourceType string
	ResourceID   string
	Since        *time.Time
}

func (f AccessFilter) matches(e *AccessEntry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.Since != nil && e.AccessedAt.Before(*f.Since) {
		return false
	}
	return true
}

// AccessLog stores access entries. List returns newest first with the total
// number of matches.
type AccessLog interface {
	Record(ctx context.Context, e *AccessEntry) error
	List(ctx context.Context, f AccessFilter, limit, offset int) ([]*AccessEntry, int, error)
}

// MemoryAccessLog keeps entries in process memory.
type MemoryAccessLog struct {
	mu      sync.RWMutex
	entries []*AccessEntry
}

func NewMemoryAccessLog() *MemoryAccessLog {
	return &MemoryAccessLog{}
}

func (l *MemoryAccessLog) Record(_ context.Context, e *AccessEntry) error {
	prepare(e)
	cp := *e
	l.mu.Lock()
	l.entries = append(l.entries, &cp)
	l.mu.Unlock()
	return nil
}

func (l *MemoryAccessLog) List(_ context.Context, f AccessFilter, limit, offset int) ([]*AccessEntry, int, error) {
	l.mu.RLock()
	var matched []*AccessEntry
	for _, e := range l.entries {
		if f.matches(e) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AccessedAt.After(matched[j].AccessedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func prepare(e *AccessEntry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.AccessedAt.IsZero() {
		e.AccessedAt = time.Now().UTC()
	}
}
