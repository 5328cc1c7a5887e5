package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daon/internal/domain"
	"daon/internal/license"
)

// TransferOwnership implements the ownership transfer protocol: existence
// check, owner claim check, per-license transfer policy, atomic mutation
// with history append, then a transferred event.
type TransferOwnership struct {
	Records  ContentRepository
	Policies *license.TransferPolicyRegistry
	Events   *EventEmitter
	Clock    Clock
}

func NewTransferOwnership(records ContentRepository, policies *license.TransferPolicyRegistry, events *EventEmitter, clock Clock) *TransferOwnership {
	return &TransferOwnership{Records: records, Policies: policies, Events: events, Clock: clock}
}

func (t *TransferOwnership) Execute(ctx context.Context, hash, claimedOwner, newOwner string) (domain.ContentRecord, error) {
	if t == nil || t.Records == nil {
		return domain.ContentRecord{}, errors.New("transfer requires a content repository")
	}
	if claimedOwner == "" || newOwner == "" {
		return domain.ContentRecord{}, errors.New("current and new owner are required")
	}
	if claimedOwner == newOwner {
		return domain.ContentRecord{}, errors.New("transfer to the current owner is a no-op")
	}

	record, err := t.Records.GetByHash(ctx, hash)
	if err != nil {
		return domain.ContentRecord{}, err
	}
	if record.Owner != claimedOwner {
		return domain.ContentRecord{}, domain.ErrUnauthorizedTransfer
	}

	if t.Policies != nil {
		if err := t.Policies.PolicyFor(record.License).CheckTransfer(record, newOwner); err != nil {
			return domain.ContentRecord{}, fmt.Errorf("%w: %s", domain.ErrLicenseViolation, err.Error())
		}
	}

	// The repository re-checks the owner inside its transaction; a
	// concurrent transfer that won the race surfaces as
	// ErrUnauthorizedTransfer here, not as a double success.
	updated, err := t.Records.Transfer(ctx, hash, claimedOwner, newOwner, t.now().UTC())
	if err != nil {
		return domain.ContentRecord{}, err
	}

	t.Events.EmitContentTransferred(updated, claimedOwner, newOwner)
	return updated, nil
}

func (t *TransferOwnership) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}
	return time.Now()
}
