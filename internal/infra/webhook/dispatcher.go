// Package webhook delivers domain events to broker-configured endpoints:
// durable per-(event, webhook) delivery rows, HMAC-signed HTTP posts with
// a bounded timeout, and a fixed-delay retry state machine driven by a
// background scheduler. Delivery is at-least-once; receivers deduplicate
// on the event ID carried in every payload.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"daon/internal/domain"

	"github.com/google/uuid"
)

const (
	// SignatureHeader carries "sha256=" + hex HMAC-SHA256 of the raw
	// body, keyed with the webhook's signing secret.
	SignatureHeader = "X-Daon-Signature"
	EventTypeHeader = "X-Daon-Event"

	defaultTimeout    = 10 * time.Second
	defaultScanPeriod = 5 * time.Second
	defaultClaimLimit = 64
	// staleClaimAfter re-queues in_flight rows whose worker died.
	staleClaimAfter = 5 * time.Minute
)

// payload is the wire format posted to endpoints.
type payload struct {
	EventType  string         `json:"event_type"`
	EventID    string         `json:"event_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

type Dispatcher struct {
	webhooks   WebhookRepository
	deliveries DeliveryRepository

	httpDo     func(*http.Request) (*http.Response, error)
	timeout    time.Duration
	scanPeriod time.Duration
	now        func() time.Time

	wake chan struct{}
	done chan struct{}
}

type Option func(*Dispatcher)

// WithHTTPClient swaps the outbound client; tests inject their own doer.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.httpDo = client.Do }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

func WithScanPeriod(period time.Duration) Option {
	return func(d *Dispatcher) { d.scanPeriod = period }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(webhooks WebhookRepository, deliveries DeliveryRepository, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		webhooks:   webhooks,
		deliveries: deliveries,
		httpDo:     http.DefaultClient.Do,
		timeout:    defaultTimeout,
		scanPeriod: defaultScanPeriod,
		now:        time.Now,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue creates one pending delivery per subscribed, enabled webhook
// and wakes the worker. It never returns an error to the event producer;
// enqueue problems are logged and the producer's operation stands.
func (d *Dispatcher) Enqueue(event domain.Event) {
	ctx := context.Background()
	hooks, err := d.webhooks.ListEnabled(ctx, event.Type)
	if err != nil {
		log.Printf("webhook: list subscribers for %s: %v", event.Type, err)
		return
	}
	if len(hooks) == 0 {
		return
	}
	body, err := json.Marshal(payload{
		EventType:  event.Type,
		EventID:    event.ID,
		OccurredAt: event.OccurredAt.UTC(),
		Data:       event.Data,
	})
	if err != nil {
		log.Printf("webhook: marshal event %s: %v", event.ID, err)
		return
	}
	now := d.now().UTC()
	for _, hook := range hooks {
		_, err := d.deliveries.Create(ctx, domain.WebhookDelivery{
			ID:          uuid.NewString(),
			WebhookID:   hook.ID,
			EventID:     event.ID,
			EventType:   event.Type,
			Payload:     body,
			Status:      domain.DeliveryPending,
			NextRetryAt: &now,
			CreatedAt:   now,
		})
		if err != nil {
			log.Printf("webhook: enqueue delivery for %s: %v", hook.ID, err)
		}
	}
	d.nudge()
}

// Run drives the scheduler until ctx is cancelled: claim due deliveries,
// attempt each, repeat on a ticker or when Enqueue nudges.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.scanPeriod)
	defer ticker.Stop()
	for {
		d.drainDue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.releaseStale(ctx)
		case <-d.wake:
		}
	}
}

// Wait blocks until Run has exited.
func (d *Dispatcher) Wait() { <-d.done }

func (d *Dispatcher) nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) drainDue(ctx context.Context) {
	for {
		due, err := d.deliveries.ClaimDue(ctx, d.now().UTC(), defaultClaimLimit)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("webhook: claim due deliveries: %v", err)
			}
			return
		}
		if len(due) == 0 {
			return
		}
		for _, delivery := range due {
			d.attempt(ctx, delivery)
		}
	}
}

func (d *Dispatcher) releaseStale(ctx context.Context) {
	released, err := d.deliveries.ReleaseStale(ctx, d.now().UTC().Add(-staleClaimAfter))
	if err != nil && ctx.Err() == nil {
		log.Printf("webhook: release stale deliveries: %v", err)
		return
	}
	if released > 0 {
		log.Printf("webhook: re-queued %d stale in-flight deliveries", released)
	}
}

// attempt performs one send and advances the delivery's state machine:
// 2xx means terminal success, anything else consumes one attempt and
// either schedules a retry or fails terminally.
func (d *Dispatcher) attempt(ctx context.Context, delivery domain.WebhookDelivery) {
	hook, err := d.webhooks.Get(ctx, delivery.WebhookID)
	if err != nil {
		d.fail(ctx, delivery, 0, "webhook configuration missing: "+err.Error())
		return
	}
	if !hook.Enabled {
		d.fail(ctx, delivery, 0, "webhook disabled")
		return
	}

	status, sendErr := d.send(ctx, hook, delivery.Payload, delivery.EventType)
	delivery.AttemptCount++
	delivery.LastHTTPStatus = status
	delivery.ClaimedAt = nil

	if sendErr == nil && status >= 200 && status < 300 {
		delivery.Status = domain.DeliverySuccess
		delivery.LastError = ""
		delivery.NextRetryAt = nil
		d.update(ctx, delivery)
		return
	}

	if sendErr != nil {
		delivery.LastError = sendErr.Error()
	} else {
		delivery.LastError = "endpoint returned " + http.StatusText(status)
	}

	if delivery.AttemptCount >= hook.MaxRetries {
		delivery.Status = domain.DeliveryFailed
		delivery.NextRetryAt = nil
		d.update(ctx, delivery)
		log.Printf("webhook: delivery %s to %s exhausted after %d attempts: %s",
			delivery.ID, hook.ID, delivery.AttemptCount, delivery.LastError)
		return
	}

	next := d.now().UTC().Add(hook.RetryDelay)
	delivery.Status = domain.DeliveryRetrying
	delivery.NextRetryAt = &next
	d.update(ctx, delivery)
}

func (d *Dispatcher) fail(ctx context.Context, delivery domain.WebhookDelivery, status int, reason string) {
	delivery.Status = domain.DeliveryFailed
	delivery.LastHTTPStatus = status
	delivery.LastError = reason
	delivery.NextRetryAt = nil
	delivery.ClaimedAt = nil
	d.update(ctx, delivery)
}

func (d *Dispatcher) update(ctx context.Context, delivery domain.WebhookDelivery) {
	delivery.UpdatedAt = d.now().UTC()
	if err := d.deliveries.Update(ctx, delivery); err != nil && ctx.Err() == nil {
		log.Printf("webhook: persist delivery %s: %v", delivery.ID, err)
	}
}

// send posts the signed payload with a bounded timeout. Exceeding the
// timeout is a failed attempt, never a hang; there is no other
// cancellation path for an in-flight attempt.
func (d *Dispatcher) send(ctx context.Context, hook domain.Webhook, body []byte, eventType string) (int, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, hook.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, eventType)
	req.Header.Set(SignatureHeader, Sign(body, hook.SigningSecret))

	resp, err := d.httpDo(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, errors.New("delivery timed out")
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
