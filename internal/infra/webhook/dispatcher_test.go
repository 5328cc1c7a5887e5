package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"daon/internal/domain"
	"daon/internal/infra/memstore"
)

type capturedRequest struct {
	body      []byte
	signature string
	eventType string
}

type captureServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	statuses []int // consumed in order; last value repeats
}

func (c *captureServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, capturedRequest{
		body:      body,
		signature: r.Header.Get(SignatureHeader),
		eventType: r.Header.Get(EventTypeHeader),
	})
	idx := len(c.requests) - 1
	if idx >= len(c.statuses) {
		idx = len(c.statuses) - 1
	}
	status := c.statuses[idx]
	c.mu.Unlock()
	w.WriteHeader(status)
}

func (c *captureServer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *captureServer) request(i int) capturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i]
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestDispatcher(t *testing.T, srv *captureServer, maxRetries int) (*Dispatcher, *memstore.DeliveryStore, *testClock, string) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	hooks := memstore.NewWebhookStore()
	deliveries := memstore.NewDeliveryStore()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	hook, err := hooks.Create(context.Background(), domain.Webhook{
		ID:               "wh-1",
		EndpointURL:      ts.URL,
		SigningSecret:    "topsecret",
		SubscribedEvents: []string{domain.EventContentProtected},
		Enabled:          true,
		MaxRetries:       maxRetries,
		RetryDelay:       30 * time.Second,
		CreatedAt:        clock.now(),
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	d := NewDispatcher(hooks, deliveries,
		WithHTTPClient(ts.Client()),
		WithClock(clock.now),
		WithTimeout(2*time.Second),
	)
	return d, deliveries, clock, hook.ID
}

func protectedEvent() domain.Event {
	return domain.Event{
		ID:         "evt-1",
		Type:       domain.EventContentProtected,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data: map[string]any{
			"content_hash": "sha256:abc",
			"owner":        "alice",
		},
	}
}

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	srv := &captureServer{statuses: []int{http.StatusOK}}
	d, deliveries, _, hookID := newTestDispatcher(t, srv, 3)

	d.Enqueue(protectedEvent())
	d.drainDue(context.Background())

	if srv.count() != 1 {
		t.Fatalf("got %d requests, want 1", srv.count())
	}
	req := srv.request(0)
	if !VerifySignature(req.body, "topsecret", req.signature) {
		t.Fatalf("signature %q does not verify against body", req.signature)
	}
	if req.eventType != domain.EventContentProtected {
		t.Fatalf("event type header = %q", req.eventType)
	}

	var got payload
	if err := json.Unmarshal(req.body, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.EventID != "evt-1" || got.EventType != domain.EventContentProtected {
		t.Fatalf("payload identity = %q/%q", got.EventID, got.EventType)
	}
	if got.Data["owner"] != "alice" {
		t.Fatalf("payload data = %v", got.Data)
	}

	rows, err := deliveries.ListByWebhook(context.Background(), hookID)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(rows))
	}
	if rows[0].Status != domain.DeliverySuccess || rows[0].AttemptCount != 1 {
		t.Fatalf("delivery = %s after %d attempts", rows[0].Status, rows[0].AttemptCount)
	}
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	srv := &captureServer{statuses: []int{http.StatusInternalServerError, http.StatusOK}}
	d, deliveries, clock, hookID := newTestDispatcher(t, srv, 3)
	ctx := context.Background()

	d.Enqueue(protectedEvent())
	d.drainDue(ctx)

	rows, _ := deliveries.ListByWebhook(ctx, hookID)
	if rows[0].Status != domain.DeliveryRetrying {
		t.Fatalf("after first failure status = %s, want retrying", rows[0].Status)
	}
	if rows[0].NextRetryAt == nil || !rows[0].NextRetryAt.Equal(clock.now().Add(30*time.Second)) {
		t.Fatalf("next retry at = %v, want now+30s", rows[0].NextRetryAt)
	}

	// Not due yet: a scan before the retry delay must not re-attempt.
	d.drainDue(ctx)
	if srv.count() != 1 {
		t.Fatalf("premature retry: %d requests", srv.count())
	}

	clock.advance(31 * time.Second)
	d.drainDue(ctx)

	rows, _ = deliveries.ListByWebhook(ctx, hookID)
	if rows[0].Status != domain.DeliverySuccess || rows[0].AttemptCount != 2 {
		t.Fatalf("delivery = %s after %d attempts, want success/2", rows[0].Status, rows[0].AttemptCount)
	}
}

func TestDispatcherStopsAtMaxRetries(t *testing.T) {
	srv := &captureServer{statuses: []int{http.StatusBadGateway}}
	d, deliveries, clock, hookID := newTestDispatcher(t, srv, 3)
	ctx := context.Background()

	d.Enqueue(protectedEvent())
	for i := 0; i < 5; i++ {
		d.drainDue(ctx)
		clock.advance(time.Minute)
	}

	if srv.count() != 3 {
		t.Fatalf("got %d attempts, want exactly max_retries=3", srv.count())
	}
	rows, _ := deliveries.ListByWebhook(ctx, hookID)
	got := rows[0]
	if got.Status != domain.DeliveryFailed || got.AttemptCount != 3 {
		t.Fatalf("delivery = %s after %d attempts, want failed/3", got.Status, got.AttemptCount)
	}
	if got.NextRetryAt != nil {
		t.Fatalf("terminal delivery still scheduled for %v", got.NextRetryAt)
	}
	if got.LastHTTPStatus != http.StatusBadGateway {
		t.Fatalf("last http status = %d", got.LastHTTPStatus)
	}
}

func TestDispatcherSkipsUnsubscribedEvents(t *testing.T) {
	srv := &captureServer{statuses: []int{http.StatusOK}}
	d, deliveries, _, hookID := newTestDispatcher(t, srv, 3)
	ctx := context.Background()

	d.Enqueue(domain.Event{
		ID:         "evt-2",
		Type:       domain.EventContentVerified,
		OccurredAt: time.Now(),
	})
	d.drainDue(ctx)

	if srv.count() != 0 {
		t.Fatalf("unsubscribed event produced %d requests", srv.count())
	}
	rows, _ := deliveries.ListByWebhook(ctx, hookID)
	if len(rows) != 0 {
		t.Fatalf("unsubscribed event produced %d deliveries", len(rows))
	}
}

func TestDispatcherFailsDisabledWebhook(t *testing.T) {
	srv := &captureServer{statuses: []int{http.StatusOK}}

	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	hooks := memstore.NewWebhookStore()
	deliveries := memstore.NewDeliveryStore()
	ctx := context.Background()
	hook, _ := hooks.Create(ctx, domain.Webhook{
		ID:               "wh-off",
		EndpointURL:      ts.URL,
		SigningSecret:    "s",
		SubscribedEvents: []string{domain.EventContentProtected},
		Enabled:          true,
		MaxRetries:       3,
		RetryDelay:       time.Second,
	})

	d := NewDispatcher(hooks, deliveries, WithHTTPClient(ts.Client()))
	d.Enqueue(protectedEvent())

	// Disabled between enqueue and attempt: pending rows terminate
	// without a send.
	hook.Enabled = false
	if _, err := hooks.Create(ctx, hook); err != nil {
		t.Fatalf("update webhook: %v", err)
	}
	d.drainDue(ctx)

	if srv.count() != 0 {
		t.Fatalf("disabled webhook received %d requests", srv.count())
	}
	rows, _ := deliveries.ListByWebhook(ctx, hook.ID)
	if len(rows) != 1 || rows[0].Status != domain.DeliveryFailed {
		t.Fatalf("delivery rows = %+v, want single failed row", rows)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_id":"evt-1"}`)
	sig := Sign(body, "secret")
	if !VerifySignature(body, "secret", sig) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(body, "wrong", sig) {
		t.Fatal("signature verified under wrong secret")
	}
	if VerifySignature([]byte("tampered"), "secret", sig) {
		t.Fatal("signature verified for tampered body")
	}
}
