package usecase

import (
	"context"
	"time"

	"daon/internal/domain"
)

// Clock lets tests pin time; a nil Clock means time.Now.
type Clock func() time.Time

// ContentLookup is the read-only surface the duplicate cascade and
// lineage traversal need. Lookups return domain.ErrContentNotFound when
// no record matches.
type ContentLookup interface {
	GetByHash(ctx context.Context, hash string) (domain.ContentRecord, error)
	GetByNormalizedHash(ctx context.Context, hash string) (domain.ContentRecord, error)
	GetByPerceptualHash(ctx context.Context, hash string) (domain.ContentRecord, error)
}

// ContentRepository adds the mutating operations. Create must enforce
// content_hash uniqueness at the storage layer and return
// domain.ErrDuplicateRejected on conflict. Transfer must apply the owner
// check and the history append atomically with respect to concurrent
// transfers of the same hash.
type ContentRepository interface {
	ContentLookup
	Create(ctx context.Context, record domain.ContentRecord) (domain.ContentRecord, error)
	Transfer(ctx context.Context, hash, fromOwner, toOwner string, at time.Time) (domain.ContentRecord, error)
	AttachAnchor(ctx context.Context, hash string, anchor domain.LedgerAnchor) error
}

// DetectionRepository records duplicate-detection audit events.
// Append-only; the core never mutates or deletes detections.
type DetectionRepository interface {
	Append(ctx context.Context, event domain.DetectionEvent) (domain.DetectionEvent, error)
}

// AnchorSubmitter hands a freshly created record to the optional ledger
// collaborator. Implementations must not block registration; results
// arrive later via ContentRepository.AttachAnchor.
type AnchorSubmitter interface {
	Submit(record domain.ContentRecord)
}
