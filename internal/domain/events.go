package domain

import "time"

const (
	EventContentProtected   = "content.protected"
	EventContentTransferred = "content.transferred"
	EventContentVerified    = "content.verified"
)

// Event is a domain event handed to the webhook delivery subsystem. Data
// is snapshotted at enqueue time; the ID lets receivers deduplicate.
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// EventSink receives domain events for asynchronous delivery. Enqueue
// failures must never fail the operation that produced the event.
type EventSink interface {
	Enqueue(event Event)
}
