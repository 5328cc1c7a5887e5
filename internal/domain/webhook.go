package domain

import "time"

type Webhook struct {
	ID               string
	EndpointURL      string
	SigningSecret    string
	SubscribedEvents []string
	Enabled          bool
	MaxRetries       int
	RetryDelay       time.Duration
	CreatedAt        time.Time
}

// Subscribed reports whether the webhook wants eventType delivered.
func (w Webhook) Subscribed(eventType string) bool {
	for _, e := range w.SubscribedEvents {
		if e == eventType {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliveryInFlight DeliveryStatus = "in_flight"
	DeliveryRetrying DeliveryStatus = "retrying"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
)

// Terminal reports whether no further attempts will be made.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

// WebhookDelivery is one durable, retried notification of a domain event
// to one webhook. Created once per (event, webhook) pair and mutated in
// place through its state machine; never re-created.
type WebhookDelivery struct {
	ID             string
	WebhookID      string
	EventID        string
	EventType      string
	Payload        []byte
	Status         DeliveryStatus
	AttemptCount   int
	NextRetryAt    *time.Time
	LastHTTPStatus int
	LastError      string
	ClaimedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
