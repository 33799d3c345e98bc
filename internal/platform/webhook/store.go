package webhook

import (
	"context"
	"encoding/json"

	"github.com/ehr/clinicreport/internal/platform/artifact"
	"github.com/ehr/clinicreport/internal/platform/db"
)

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(e Event) bool
}

// Fanout publishes each event to every publisher in order.
type Fanout []Publisher

// Publish reports whether any publisher accepted the event.
func (f Fanout) Publish(e Event) bool {
	accepted := false
	for _, p := range f {
		if p.Publish(e) {
			accepted = true
		}
	}
	return accepted
}

// NotifyingStore wraps an artifact.Store and publishes an event after every
// successful Save and Delete.
type NotifyingStore struct {
	artifact.Store
	pub Publisher
}

func NewNotifyingStore(store artifact.Store, pub Publisher) *NotifyingStore {
	return &NotifyingStore{Store: store, pub: pub}
}

func (s *NotifyingStore) Save(ctx context.Context, meta artifact.Metadata, content []byte) (*artifact.Metadata, error) {
	saved, err := s.Store.Save(ctx, meta, content)
	if err != nil {
		return nil, err
	}
	// Metadata only; the document itself never leaves the service.
	payload, _ := json.Marshal(saved)
	s.pub.Publish(Event{
		Type:         EventReportStored,
		ResourceType: "report_artifact",
		ResourceID:   saved.ID,
		TenantID:     db.TenantFromContext(ctx),
		Payload:      payload,
	})
	return saved, nil
}

func (s *NotifyingStore) Delete(ctx context.Context, id string) error {
	// Looked up first so the event still names the consultation.
	meta, _ := s.Store.GetMetadata(ctx, id)
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	var payload json.RawMessage
	if meta != nil {
		payload, _ = json.Marshal(meta)
	}
	s.pub.Publish(Event{
		Type:         EventReportDeleted,
		ResourceType: "report_artifact",
		ResourceID:   id,
		TenantID:     db.TenantFromContext(ctx),
		Payload:      payload,
	})
	return nil
}
