package webhook

import (
	"context"
	"time"

	"daon/internal/domain"
)

type WebhookRepository interface {
	Create(ctx context.Context, hook domain.Webhook) (domain.Webhook, error)
	Get(ctx context.Context, id string) (domain.Webhook, error)
	// ListEnabled returns enabled webhooks subscribed to eventType.
	ListEnabled(ctx context.Context, eventType string) ([]domain.Webhook, error)
}

type DeliveryRepository interface {
	Create(ctx context.Context, delivery domain.WebhookDelivery) (domain.WebhookDelivery, error)
	// ClaimDue atomically moves due pending/retrying deliveries to
	// in_flight and returns them. A delivery returned here is owned by
	// the caller until it transitions the status again; no two workers
	// may hold the same delivery.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
	Update(ctx context.Context, delivery domain.WebhookDelivery) error
	ListByWebhook(ctx context.Context, webhookID string) ([]domain.WebhookDelivery, error)
	// ReleaseStale re-queues in_flight deliveries claimed before the
	// cutoff (a worker died mid-attempt).
	ReleaseStale(ctx context.Context, cutoff time.Time) (int, error)
}
