// Package webhook notifies external systems when consultation reports are
// stored or removed. Payloads are signed with HMAC-SHA256 and delivered in
// the background with retries.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	EventReportStored  = "report.stored"
	EventReportDeleted = "report.deleted"
)

// Event is the JSON body POSTed to every endpoint.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	TenantID     string          `json:"tenant_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Endpoint is a delivery destination. Secret signs the payload.
type Endpoint struct {
	URL    string
	Secret string
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ValidateURL checks that the URL is non-empty and uses http or https.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRetryDelays sets the waits between attempts. The number of delays is
// the number of retries.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelays = delays }
}

// WithQueueSize bounds the number of undelivered events.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queueSize = n }
}

// Dispatcher delivers events to a fixed set of endpoints from a pool of
// background workers. Publish never blocks: events are dropped, and logged,
// when the queue is full.
type Dispatcher struct {
	endpoints   []Endpoint
	client      *http.Client
	retryDelays []time.Duration
	queueSize   int
	logger      zerolog.Logger

	queue chan Event
	wg    sync.WaitGroup
	stop  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		endpoints:   endpoints,
		client:      &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		queueSize:   256,
		logger:      logger,
		stop:        make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	d.queue = make(chan Event, d.queueSize)
	return d
}

// Start launches workers goroutines. Call Close to drain and stop them.
func (d *Dispatcher) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for e := range d.queue {
				d.deliverAll(e)
			}
		}()
	}
}

// Publish queues e for delivery and reports whether it was accepted.
func (d *Dispatcher) Publish(e Event) bool {
	if len(d.endpoints) == 0 {
		return false
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- e:
		return true
	default:
		d.logger.Warn().Str("event_id", e.ID).Str("type", e.Type).Msg("webhook queue full, event dropped")
		return false
	}
}

// Close stops accepting events, abandons pending retries and waits for
// in-flight deliveries to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stop)
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliverAll(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", e.ID).Msg("webhook payload encoding failed")
		return
	}
	for _, ep := range d.endpoints {
		if err := d.deliverWithRetry(ep, e, payload); err != nil {
			d.logger.Error().Err(err).
				Str("event_id", e.ID).
				Str("type", e.Type).
				Str("url", ep.URL).
				Msg("webhook delivery failed")
		}
	}
}

func (d *Dispatcher) deliverWithRetry(ep Endpoint, e Event, payload []byte) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = d.deliver(context.Background(), ep, payload); err == nil {
			d.logger.Debug().Str("event_id", e.ID).Str("url", ep.URL).Int("attempt", attempt+1).Msg("webhook delivered")
			return nil
		}
		if attempt >= len(d.retryDelays) {
			return fmt.Errorf("after %d attempt(s): %w", attempt+1, err)
		}
		select {
		case <-time.After(d.retryDelays[attempt]):
		case <-d.stop:
			return fmt.Errorf("shutdown before retry: %w", err)
		}
	}
}

// deliver signs the payload and POSTs it to the endpoint once.
func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if ep.Secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(payload, ep.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}
