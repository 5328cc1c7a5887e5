package usecase

import (
	"context"
	"errors"

	"daon/internal/domain"
	"daon/internal/identity"
)

// VerifyContent answers "is this hash registered, and to whom". A
// successful verification emits content.verified for integrators that
// subscribe to verification activity.
type VerifyContent struct {
	Records ContentLookup
	Events  *EventEmitter
}

func NewVerifyContent(records ContentLookup, events *EventEmitter) *VerifyContent {
	return &VerifyContent{Records: records, Events: events}
}

func (v *VerifyContent) Execute(ctx context.Context, hash string) (domain.ContentRecord, error) {
	if v == nil || v.Records == nil {
		return domain.ContentRecord{}, errors.New("verify requires a content lookup")
	}
	if err := identity.ValidateHash(hash); err != nil {
		return domain.ContentRecord{}, err
	}
	record, err := v.Records.GetByHash(ctx, hash)
	if err != nil {
		return domain.ContentRecord{}, err
	}
	v.Events.EmitContentVerified(record)
	return record, nil
}
