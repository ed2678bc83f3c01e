package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"colend/core/types"
	"colend/observability/metrics"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueDepth  = 256
)

// Endpoint is one delivery destination. An empty Events list receives every
// committed event type.
type Endpoint struct {
	URL    string
	Events []string
}

type destination struct {
	url    string
	filter map[string]struct{}
}

func (d destination) wants(eventType string) bool {
	if d.filter == nil {
		return true
	}
	_, ok := d.filter[eventType]
	return ok
}

// Payload is the JSON body posted to each destination.
type Payload struct {
	DeliveryID string            `json:"deliveryId"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

type delivery struct {
	id        string
	url       string
	eventType string
	body      []byte
}

// Dispatcher fans committed ledger events out to HTTP destinations with
// HMAC-SHA256 signed bodies, retrying with exponential backoff. It implements
// the node's event sink contract: Deliver never blocks, dropping with a
// metric when the queue is full. A journal, when configured, persists
// delivery state so unfinished deliveries replay after a restart.
type Dispatcher struct {
	secret       []byte
	destinations []destination
	client       *http.Client
	journal      *Journal
	maxAttempts  int
	minBackoff   time.Duration
	maxBackoff   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithJournal persists delivery state across restarts. Pending entries replay
// immediately.
func WithJournal(journal *Journal) Option {
	return func(d *Dispatcher) { d.journal = journal }
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(secret []byte, endpoints []Endpoint, opts ...Option) (*Dispatcher, error) {
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	if len(endpoints) == 0 {
		return nil, errors.New("webhook: at least one endpoint required")
	}
	destinations := make([]destination, 0, len(endpoints))
	for _, endpoint := range endpoints {
		url := strings.TrimSpace(endpoint.URL)
		if url == "" {
			return nil, errors.New("webhook: endpoint url required")
		}
		dest := destination{url: url}
		if len(endpoint.Events) > 0 {
			dest.filter = make(map[string]struct{}, len(endpoint.Events))
			for _, eventType := range endpoint.Events {
				if trimmed := strings.TrimSpace(eventType); trimmed != "" {
					dest.filter[trimmed] = struct{}{}
				}
			}
		}
		destinations = append(destinations, dest)
		metrics.Webhooks().InitDestination(url)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		secret:       append([]byte(nil), secret...),
		destinations: destinations,
		client:       &http.Client{Timeout: 15 * time.Second},
		maxAttempts:  defaultMaxAttempts,
		minBackoff:   defaultMinBackoff,
		maxBackoff:   defaultMaxBackoff,
		ctx:          ctx,
		cancel:       cancel,
		queue:        make(chan delivery, defaultQueueDepth),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	if dispatcher.journal != nil {
		dispatcher.replayPending()
	}
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
// Queued deliveries stay in the journal for the next start.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Deliver implements the event sink contract. It must not block: when the
// queue is full the event is dropped and counted.
func (d *Dispatcher) Deliver(evt *types.Event) {
	if d == nil || evt == nil {
		return
	}
	for _, dest := range d.destinations {
		if !dest.wants(evt.Type) {
			continue
		}
		payload := Payload{
			DeliveryID: uuid.NewString(),
			Type:       evt.Type,
			Attributes: evt.Attributes,
			EmittedAt:  time.Now().UTC(),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			slog.Error("webhook payload marshal failed", "type", evt.Type, "err", err)
			continue
		}
		job := delivery{id: payload.DeliveryID, url: dest.url, eventType: evt.Type, body: body}
		if d.journal != nil {
			if err := d.journal.Record(JournalEntry{
				ID:        job.id,
				URL:       job.url,
				EventType: job.eventType,
				Body:      job.body,
				Status:    StatusPending,
			}); err != nil {
				slog.Error("webhook journal write failed", "delivery", job.id, "err", err)
			}
		}
		select {
		case d.queue <- job:
			metrics.Webhooks().SetQueueDepth(len(d.queue))
		default:
			metrics.Webhooks().IncDropped(dest.url)
			slog.Warn("webhook queue full, dropping event", "type", evt.Type, "destination", dest.url)
		}
	}
}

// replayPending re-enqueues journalled deliveries that never completed.
func (d *Dispatcher) replayPending() {
	entries, err := d.journal.Pending()
	if err != nil {
		slog.Error("webhook journal replay failed", "err", err)
		return
	}
	for _, entry := range entries {
		job := delivery{id: entry.ID, url: entry.URL, eventType: entry.EventType, body: entry.Body}
		select {
		case d.queue <- job:
		default:
			metrics.Webhooks().IncDropped(entry.URL)
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			metrics.Webhooks().SetQueueDepth(len(d.queue))
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			metrics.Webhooks().IncDelivery(job.url)
			d.finishJournal(job.id, StatusDelivered)
			return
		}
		metrics.Webhooks().IncFailure(job.url)
		if attempt >= d.maxAttempts {
			metrics.Webhooks().IncDropped(job.url)
			d.finishJournal(job.id, StatusAbandoned)
			slog.Warn("webhook delivery abandoned", "delivery", job.id, "destination", job.url, "attempts", attempt)
			return
		}
		metrics.Webhooks().IncRetry(job.url)
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) finishJournal(id string, status DeliveryStatus) {
	if d.journal == nil {
		return
	}
	if err := d.journal.SetStatus(id, status); err != nil {
		slog.Error("webhook journal update failed", "delivery", id, "err", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.url, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Colend-Event", job.eventType)
	req.Header.Set("X-Colend-Delivery", job.id)
	req.Header.Set("X-Colend-Signature", d.sign(job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

func (d *Dispatcher) sign(body []byte) string {
	mac := hmac.New(sha256.New, d.secret)
	_, _ = mac.Write(body)
	sum := mac.Sum(nil)
	return "sha256=" + hex.EncodeToString(sum)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
