package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/routing"
)

// EventEngagementRequested is the event name sent with every webhook.
const EventEngagementRequested = "engagement_requested"

// Dispatcher records engagement requests and delivers them to a webhook.
type Dispatcher struct {
	store       *Store
	client      *http.Client
	url         string
	minPriority routing.Priority
	logger      *zap.Logger
	observe     func(error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStore keeps a delivery log so failed deliveries can be retried.
func WithStore(s *Store) Option {
	return func(d *Dispatcher) { d.store = s }
}

// WithMinPriority drops requests below p.
func WithMinPriority(p routing.Priority) Option {
	return func(d *Dispatcher) { d.minPriority = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithObserver is called with the outcome of every delivery attempt.
func WithObserver(f func(error)) Option {
	return func(d *Dispatcher) { d.observe = f }
}

// NewDispatcher creates a Dispatcher posting to url. An empty url only
// records requests.
func NewDispatcher(url string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		minPriority: routing.PriorityLow,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify records req and sends it to the webhook. Requests below the
// minimum priority are ignored.
func (d *Dispatcher) Notify(ctx context.Context, req *routing.EngagementRequest) error {
	if req == nil || !priorityMatches(req.Priority, d.minPriority) {
		return nil
	}

	id := uuid.New().String()
	payload, err := json.Marshal(webhookBody{Event: EventEngagementRequested, ID: id, Request: req})
	if err != nil {
		return fmt.Errorf("encoding engagement request: %w", err)
	}

	if d.store != nil {
		if _, err := d.store.Create(ctx, Notification{
			ID:        id,
			RequestID: req.ID,
			SessionID: req.SessionID,
			Priority:  req.Priority,
			Domain:    req.Domain,
			Payload:   payload,
		}); err != nil {
			return fmt.Errorf("creating notification: %w", err)
		}
	}
	if d.url == "" {
		return nil
	}

	sendErr := d.send(ctx, payload)
	if d.store != nil {
		if err := d.store.RecordAttempt(ctx, id, sendErr); err != nil {
			d.logger.Warn("recording webhook attempt failed", zap.String("notification_id", id), zap.Error(err))
		}
	}
	if sendErr != nil {
		d.logger.Warn("webhook delivery failed",
			zap.String("request_id", req.ID),
			zap.String("priority", string(req.Priority)),
			zap.Error(sendErr),
		)
		return sendErr
	}
	d.logger.Debug("engagement request delivered", zap.String("request_id", req.ID))
	return nil
}

// Redeliver retries every pending notification and returns how many were
// delivered.
func (d *Dispatcher) Redeliver(ctx context.Context) (int, error) {
	if d.store == nil || d.url == "" {
		return 0, nil
	}
	pending, err := d.store.GetPending(ctx)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, n := range pending {
		sendErr := d.send(ctx, n.Payload)
		if err := d.store.RecordAttempt(ctx, n.ID, sendErr); err != nil {
			return delivered, err
		}
		if sendErr == nil {
			delivered++
		}
	}
	return delivered, nil
}

func (d *Dispatcher) send(ctx context.Context, payload []byte) error {
	err := d.SendWebhook(ctx, d.url, payload)
	if d.observe != nil {
		d.observe(err)
	}
	return err
}

// SendWebhook POSTs payload to the given URL.
func (d *Dispatcher) SendWebhook(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// priorityMatches returns true if the request priority meets or exceeds the filter threshold.
func priorityMatches(actual, threshold routing.Priority) bool {
	return actual.Rank() >= threshold.Rank()
}
