// Package websocket pushes report events to connected clients. Clients
// subscribe to topics and only ever see events from their own tenant.
package websocket

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicreport/internal/platform/webhook"
)

const (
	sendBuffer = 64

	// ConsultationTopicPrefix followed by a consultation id selects the
	// events of that consultation.
	ConsultationTopicPrefix = "consultation:"
)

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connection. Send is closed when the hub drops the client.
type Client struct {
	ID       string
	TenantID string
	Send     chan []byte
	topics   map[string]struct{}
}

func NewClient(tenantID string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Send:     make(chan []byte, sendBuffer),
		topics:   make(map[string]struct{}),
	}
}

// ValidTopic reports whether a client may subscribe to topic.
func ValidTopic(topic string) bool {
	switch topic {
	case webhook.EventReportStored, webhook.EventReportDeleted:
		return true
	}
	if id, ok := strings.CutPrefix(topic, ConsultationTopicPrefix); ok {
		_, err := uuid.Parse(id)
		return err == nil
	}
	return false
}

// Hub tracks clients and their topic subscriptions. It satisfies
// webhook.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	closed  bool
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds client with its initial topics. A closed hub rejects the
// client by closing its Send channel.
func (h *Hub) Register(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(client.Send)
		return
	}
	h.all[client] = struct{}{}
	h.subscribeLocked(client, topics)
}

// Unregister removes client and closes its Send channel. Repeated calls are
// no-ops.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, topicList(client))
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	h.subscribeLocked(client, topics)
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client, topics)
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if !ValidTopic(topic) {
			continue
		}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		client.topics[topic] = struct{}{}
	}
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
		delete(client.topics, topic)
	}
}

func topicList(client *Client) []string {
	topics := make([]string, 0, len(client.topics))
	for t := range client.topics {
		topics = append(topics, t)
	}
	return topics
}

// ProcessMessage applies a subscribe or unsubscribe request. Unknown actions
// are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// topicsFor lists the topics an event is delivered on: its type, and its
// consultation when the payload names one.
func topicsFor(e webhook.Event) []string {
	topics := []string{e.Type}
	if len(e.Payload) > 0 {
		var ref struct {
			ConsultationID string `json:"consultation_id"`
		}
		if json.Unmarshal(e.Payload, &ref) == nil && ref.ConsultationID != "" {
			topics = append(topics, ConsultationTopicPrefix+ref.ConsultationID)
		}
	}
	return topics
}

// Publish sends e to every subscriber of its topics in the event's tenant.
// Clients whose buffer is full miss the event. It reports whether at least
// one client received it.
func (h *Hub) Publish(e webhook.Event) bool {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error().Err(err).Str("type", e.Type).Msg("failed to marshal event")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}

	sent := make(map[*Client]struct{})
	for _, topic := range topicsFor(e) {
		for client := range h.clients[topic] {
			if _, dup := sent[client]; dup || client.TenantID != e.TenantID {
				continue
			}
			select {
			case client.Send <- data:
				sent[client] = struct{}{}
			default:
				h.logger.Warn().Str("client_id", client.ID).Msg("websocket client buffer full, event dropped")
			}
		}
	}
	return len(sent) > 0
}

// Close drops every client. Later registrations are rejected.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.all {
		close(client.Send)
	}
	h.all = make(map[*Client]struct{})
	h.clients = make(map[string]map[*Client]struct{})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
