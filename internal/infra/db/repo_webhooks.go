package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"daon/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, hook domain.Webhook) (domain.Webhook, error) {
	if r.db == nil {
		return domain.Webhook{}, errDBUnavailable
	}
	if hook.EndpointURL == "" {
		return domain.Webhook{}, errors.New("endpoint_url is required")
	}
	if len(hook.SubscribedEvents) == 0 {
		return domain.Webhook{}, errors.New("at least one subscribed event is required")
	}
	if hook.ID == "" {
		hook.ID = uuid.NewString()
	}
	if hook.CreatedAt.IsZero() {
		hook.CreatedAt = time.Now().UTC()
	}

	eventsJSON, err := json.Marshal(hook.SubscribedEvents)
	if err != nil {
		return domain.Webhook{}, err
	}
	model := WebhookModel{
		ID:                   hook.ID,
		EndpointURL:          hook.EndpointURL,
		SigningSecret:        hook.SigningSecret,
		SubscribedEventsJSON: eventsJSON,
		Enabled:              hook.Enabled,
		MaxRetries:           hook.MaxRetries,
		RetryDelaySeconds:    int(hook.RetryDelay / time.Second),
		CreatedAt:            hook.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return domain.Webhook{}, err
	}
	return hook, nil
}

func (r *WebhookRepository) Get(ctx context.Context, id string) (domain.Webhook, error) {
	if r.db == nil {
		return domain.Webhook{}, errDBUnavailable
	}
	var model WebhookModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Webhook{}, domain.ErrWebhookNotFound
		}
		return domain.Webhook{}, err
	}
	return webhookFromModel(model)
}

func (r *WebhookRepository) ListEnabled(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []WebhookModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	var out []domain.Webhook
	for _, m := range models {
		hook, err := webhookFromModel(m)
		if err != nil {
			return nil, err
		}
		if hook.Subscribed(eventType) {
			out = append(out, hook)
		}
	}
	return out, nil
}

func webhookFromModel(model WebhookModel) (domain.Webhook, error) {
	var events []string
	if len(model.SubscribedEventsJSON) > 0 {
		if err := json.Unmarshal(model.SubscribedEventsJSON, &events); err != nil {
			return domain.Webhook{}, err
		}
	}
	return domain.Webhook{
		ID:               model.ID,
		EndpointURL:      model.EndpointURL,
		SigningSecret:    model.SigningSecret,
		SubscribedEvents: events,
		Enabled:          model.Enabled,
		MaxRetries:       model.MaxRetries,
		RetryDelay:       time.Duration(model.RetryDelaySeconds) * time.Second,
		CreatedAt:        model.CreatedAt.UTC(),
	}, nil
}
