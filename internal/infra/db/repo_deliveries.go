package db

import (
	"context"
	"errors"
	"time"

	"daon/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(ctx context.Context, delivery domain.WebhookDelivery) (domain.WebhookDelivery, error) {
	if r.db == nil {
		return domain.WebhookDelivery{}, errDBUnavailable
	}
	if delivery.WebhookID == "" || delivery.EventID == "" {
		return domain.WebhookDelivery{}, errors.New("webhook_id and event_id are required")
	}
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	if delivery.Status == "" {
		delivery.Status = domain.DeliveryPending
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	delivery.UpdatedAt = delivery.CreatedAt

	model := deliveryModelFromDomain(delivery)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.WebhookDelivery{}, err
	}
	return delivery, nil
}

// ClaimDue marks due pending and retrying rows in_flight and returns
// them. The status transition inside one UPDATE is the claim: two
// workers scanning concurrently cannot both claim the same row.
func (r *DeliveryRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var claimed []WebhookDeliveryModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []WebhookDeliveryModel
		q := tx.
			Where("status IN ?", []string{string(domain.DeliveryPending), string(domain.DeliveryRetrying)}).
			Where("next_retry_at IS NULL OR next_retry_at <= ?", now.UTC()).
			Order("created_at ASC").
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if limit > 0 {
			q = q.Limit(limit)
		}
		if err := q.Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		ids := make([]string, 0, len(due))
		for _, d := range due {
			ids = append(ids, d.ID)
		}
		claimedAt := now.UTC()
		if err := tx.Model(&WebhookDeliveryModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     string(domain.DeliveryInFlight),
				"claimed_at": claimedAt,
			}).Error; err != nil {
			return err
		}
		for i := range due {
			due[i].Status = string(domain.DeliveryInFlight)
			at := claimedAt
			due[i].ClaimedAt = &at
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.WebhookDelivery, 0, len(claimed))
	for _, m := range claimed {
		out = append(out, deliveryFromModel(m))
	}
	return out, nil
}

func (r *DeliveryRepository) Update(ctx context.Context, delivery domain.WebhookDelivery) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := deliveryModelFromDomain(delivery)
	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ?", delivery.ID).
		Select("status", "attempt_count", "next_retry_at", "last_http_status", "last_error", "claimed_at", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

func (r *DeliveryRepository) ListByWebhook(ctx context.Context, webhookID string) ([]domain.WebhookDelivery, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []WebhookDeliveryModel
	if err := r.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.WebhookDelivery, 0, len(models))
	for _, m := range models {
		out = append(out, deliveryFromModel(m))
	}
	return out, nil
}

// ReleaseStale re-queues in_flight rows claimed before cutoff. Covers a
// worker that died mid-attempt; the re-sent delivery is the at-least-once
// duplicate receivers are told to expect.
func (r *DeliveryRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("status = ? AND claimed_at < ?", string(domain.DeliveryInFlight), cutoff.UTC()).
		Updates(map[string]any{
			"status":     string(domain.DeliveryRetrying),
			"claimed_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func deliveryModelFromDomain(d domain.WebhookDelivery) WebhookDeliveryModel {
	model := WebhookDeliveryModel{
		ID:             d.ID,
		WebhookID:      d.WebhookID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Payload:        d.Payload,
		Status:         string(d.Status),
		AttemptCount:   d.AttemptCount,
		LastHTTPStatus: d.LastHTTPStatus,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if d.NextRetryAt != nil {
		at := d.NextRetryAt.UTC()
		model.NextRetryAt = &at
	}
	if d.ClaimedAt != nil {
		at := d.ClaimedAt.UTC()
		model.ClaimedAt = &at
	}
	return model
}

func deliveryFromModel(m WebhookDeliveryModel) domain.WebhookDelivery {
	d := domain.WebhookDelivery{
		ID:             m.ID,
		WebhookID:      m.WebhookID,
		EventID:        m.EventID,
		EventType:      m.EventType,
		Payload:        m.Payload,
		Status:         domain.DeliveryStatus(m.Status),
		AttemptCount:   m.AttemptCount,
		LastHTTPStatus: m.LastHTTPStatus,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	if m.NextRetryAt != nil {
		at := m.NextRetryAt.UTC()
		d.NextRetryAt = &at
	}
	if m.ClaimedAt != nil {
		at := m.ClaimedAt.UTC()
		d.ClaimedAt = &at
	}
	return d
}
