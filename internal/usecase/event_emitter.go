package usecase

import (
	"time"

	"daon/internal/domain"

	"github.com/google/uuid"
)

// EventEmitter builds domain events and hands them to the webhook
// delivery subsystem. A nil sink makes every emit a no-op, so callers
// never branch on whether notifications are configured.
type EventEmitter struct {
	Sink  domain.EventSink
	Clock Clock
}

func NewEventEmitter(sink domain.EventSink, clock Clock) *EventEmitter {
	return &EventEmitter{Sink: sink, Clock: clock}
}

func (e *EventEmitter) emit(eventType string, data map[string]any) {
	if e == nil || e.Sink == nil {
		return
	}
	e.Sink.Enqueue(domain.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: e.now().UTC(),
		Data:       data,
	})
}

func (e *EventEmitter) EmitContentProtected(record domain.ContentRecord, flagged *domain.DuplicateMatch) {
	data := map[string]any{
		"content_hash": record.ContentHash,
		"owner":        record.Owner,
		"creator":      record.Creator,
		"license":      record.License,
		"created_at":   record.CreatedAt.UTC().Format(time.RFC3339),
	}
	if record.PreviousVersion != "" {
		data["previous_version"] = record.PreviousVersion
	}
	if flagged != nil {
		data["flagged_level"] = string(flagged.Level)
		data["flagged_match"] = flagged.Record.ContentHash
	}
	e.emit(domain.EventContentProtected, data)
}

func (e *EventEmitter) EmitContentTransferred(record domain.ContentRecord, from, to string) {
	e.emit(domain.EventContentTransferred, map[string]any{
		"content_hash": record.ContentHash,
		"from":         from,
		"to":           to,
		"license":      record.License,
	})
}

func (e *EventEmitter) EmitContentVerified(record domain.ContentRecord) {
	e.emit(domain.EventContentVerified, map[string]any{
		"content_hash": record.ContentHash,
		"owner":        record.Owner,
		"license":      record.License,
	})
}

func (e *EventEmitter) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}
