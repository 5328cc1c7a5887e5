// Package memstore provides mutex-guarded in-memory implementations of
// the engine's repositories. They back unit tests and the no-db mode the
// service starts in when POSTGRES_DSN is unset, and they honor the same
// atomicity contracts as the Postgres repositories.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"daon/internal/domain"

	"github.com/google/uuid"
)

type ContentStore struct {
	mu           sync.Mutex
	records      map[string]*domain.ContentRecord
	byNormalized map[string]string
	byPerceptual map[string]string
}

func NewContentStore() *ContentStore {
	return &ContentStore{
		records:      make(map[string]*domain.ContentRecord),
		byNormalized: make(map[string]string),
		byPerceptual: make(map[string]string),
	}
}

func (s *ContentStore) Create(ctx context.Context, record domain.ContentRecord) (domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ContentHash]; exists {
		return domain.ContentRecord{}, &domain.DuplicateError{ContentHash: record.ContentHash}
	}
	stored := cloneRecord(record)
	s.records[record.ContentHash] = &stored
	if record.NormalizedHash != "" {
		if _, taken := s.byNormalized[record.NormalizedHash]; !taken {
			s.byNormalized[record.NormalizedHash] = record.ContentHash
		}
	}
	if record.PerceptualHash != "" {
		if _, taken := s.byPerceptual[record.PerceptualHash]; !taken {
			s.byPerceptual[record.PerceptualHash] = record.ContentHash
		}
	}
	return cloneRecord(stored), nil
}

func (s *ContentStore) GetByHash(ctx context.Context, hash string) (domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[hash]
	if !ok {
		return domain.ContentRecord{}, domain.ErrContentNotFound
	}
	return cloneRecord(*record), nil
}

func (s *ContentStore) GetByNormalizedHash(ctx context.Context, hash string) (domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byNormalized[hash]
	if !ok {
		return domain.ContentRecord{}, domain.ErrContentNotFound
	}
	return cloneRecord(*s.records[key]), nil
}

func (s *ContentStore) GetByPerceptualHash(ctx context.Context, hash string) (domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byPerceptual[hash]
	if !ok {
		return domain.ContentRecord{}, domain.ErrContentNotFound
	}
	return cloneRecord(*s.records[key]), nil
}

// Transfer applies the owner check and the history append under one
// lock, so two racing transfers from the same prior owner cannot both
// succeed.
func (s *ContentStore) Transfer(ctx context.Context, hash, fromOwner, toOwner string, at time.Time) (domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[hash]
	if !ok {
		return domain.ContentRecord{}, domain.ErrContentNotFound
	}
	if record.Owner != fromOwner {
		return domain.ContentRecord{}, domain.ErrUnauthorizedTransfer
	}
	record.Owner = toOwner
	record.TransferHistory = append(record.TransferHistory, domain.TransferEntry{
		ContentHash: hash,
		FromOwner:   fromOwner,
		ToOwner:     toOwner,
		At:          at,
	})
	return cloneRecord(*record), nil
}

func (s *ContentStore) AttachAnchor(ctx context.Context, hash string, anchor domain.LedgerAnchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[hash]
	if !ok {
		return domain.ErrContentNotFound
	}
	a := anchor
	record.Anchor = &a
	return nil
}

func cloneRecord(in domain.ContentRecord) domain.ContentRecord {
	out := in
	if in.Metadata != nil {
		out.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			out.Metadata[k] = v
		}
	}
	out.TransferHistory = append([]domain.TransferEntry(nil), in.TransferHistory...)
	if in.Anchor != nil {
		a := *in.Anchor
		out.Anchor = &a
	}
	return out
}

type DetectionStore struct {
	mu     sync.Mutex
	events []domain.DetectionEvent
}

func NewDetectionStore() *DetectionStore {
	return &DetectionStore{}
}

func (s *DetectionStore) Append(ctx context.Context, event domain.DetectionEvent) (domain.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events = append(s.events, event)
	return event, nil
}

// ListByMatchedRecord returns the detections that matched one record,
// newest first.
func (s *DetectionStore) ListByMatchedRecord(ctx context.Context, hash string) ([]domain.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DetectionEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].MatchedRecord == hash {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// All returns a snapshot of every detection, oldest first.
func (s *DetectionStore) All() []domain.DetectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DetectionEvent(nil), s.events...)
}

type WebhookStore struct {
	mu       sync.Mutex
	webhooks map[string]domain.Webhook
}

func NewWebhookStore() *WebhookStore {
	return &WebhookStore{webhooks: make(map[string]domain.Webhook)}
}

func (s *WebhookStore) Create(ctx context.Context, hook domain.Webhook) (domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hook.ID == "" {
		hook.ID = uuid.NewString()
	}
	s.webhooks[hook.ID] = hook
	return hook, nil
}

func (s *WebhookStore) Get(ctx context.Context, id string) (domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hook, ok := s.webhooks[id]
	if !ok {
		return domain.Webhook{}, domain.ErrWebhookNotFound
	}
	return hook, nil
}

func (s *WebhookStore) ListEnabled(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Webhook
	for _, hook := range s.webhooks {
		if hook.Enabled && hook.Subscribed(eventType) {
			out = append(out, hook)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type DeliveryStore struct {
	mu         sync.Mutex
	deliveries map[string]*domain.WebhookDelivery
}

func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{deliveries: make(map[string]*domain.WebhookDelivery)}
}

func (s *DeliveryStore) Create(ctx context.Context, delivery domain.WebhookDelivery) (domain.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	stored := delivery
	s.deliveries[delivery.ID] = &stored
	return delivery, nil
}

func (s *DeliveryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*domain.WebhookDelivery
	for _, d := range s.deliveries {
		if d.Status != domain.DeliveryPending && d.Status != domain.DeliveryRetrying {
			continue
		}
		if d.NextRetryAt != nil && d.NextRetryAt.After(now) {
			continue
		}
		due = append(due, d)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.WebhookDelivery, 0, len(due))
	for _, d := range due {
		d.Status = domain.DeliveryInFlight
		claimed := now
		d.ClaimedAt = &claimed
		out = append(out, *d)
	}
	return out, nil
}

func (s *DeliveryStore) Update(ctx context.Context, delivery domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.deliveries[delivery.ID]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	*stored = delivery
	return nil
}

func (s *DeliveryStore) ListByWebhook(ctx context.Context, webhookID string) ([]domain.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WebhookDelivery
	for _, d := range s.deliveries {
		if d.WebhookID == webhookID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *DeliveryStore) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := 0
	for _, d := range s.deliveries {
		if d.Status == domain.DeliveryInFlight && d.ClaimedAt != nil && d.ClaimedAt.Before(cutoff) {
			d.Status = domain.DeliveryRetrying
			d.ClaimedAt = nil
			released++
		}
	}
	return released, nil
}
