package usecase

import (
	"context"
	"errors"
	"time"

	"daon/internal/domain"
	"daon/internal/identity"
)

// RegisterContent is the registration entrypoint. It computes the
// three-tier identity, runs the duplicate cascade, creates the record,
// emits the protected event and hands the record to the optional ledger
// anchor.
type RegisterContent struct {
	Records ContentRepository
	Dupes   *DuplicateCheck
	Events  *EventEmitter
	Anchor  AnchorSubmitter
	Clock   Clock

	// StrictLineage makes a previous_version that does not resolve a
	// registration error instead of a tolerated forward reference.
	StrictLineage bool
}

type RegisterContentRequest struct {
	Content         string
	Creator         string
	License         string
	PreviousVersion string
	Platform        string
	Metadata        map[string]string
	CallerMeta      map[string]string
}

type RegisterContentResult struct {
	Record domain.ContentRecord
	// Flagged is set when the normalized or perceptual tier matched.
	// The submission was still accepted; the caller decides how to
	// present the likely-revision relationship.
	Flagged *domain.DuplicateMatch
}

func (r *RegisterContent) Execute(ctx context.Context, req RegisterContentRequest) (RegisterContentResult, error) {
	if r == nil || r.Records == nil || r.Dupes == nil {
		return RegisterContentResult{}, errors.New("register content requires records and duplicate check")
	}
	if req.Creator == "" {
		return RegisterContentResult{}, errors.New("creator is required")
	}
	if !domain.ValidLicense(req.License) {
		return RegisterContentResult{}, domain.ErrInvalidLicense
	}

	id, err := identity.Compute(req.Content)
	if err != nil {
		return RegisterContentResult{}, err
	}

	if req.PreviousVersion != "" {
		if err := identity.ValidateHash(req.PreviousVersion); err != nil {
			return RegisterContentResult{}, err
		}
		if r.StrictLineage {
			if _, err := r.Records.GetByHash(ctx, req.PreviousVersion); err != nil {
				if errors.Is(err, domain.ErrContentNotFound) {
					return RegisterContentResult{}, domain.ErrVersionNotFound
				}
				return RegisterContentResult{}, err
			}
		}
	}

	match, err := r.Dupes.Check(ctx, id, req.CallerMeta)
	if err != nil {
		return RegisterContentResult{}, err
	}
	if match != nil && match.Level == domain.MatchExact {
		return RegisterContentResult{}, &domain.DuplicateError{ContentHash: match.Record.ContentHash}
	}

	record := domain.ContentRecord{
		ContentHash:     id.Exact,
		NormalizedHash:  id.Normalized,
		PerceptualHash:  id.Perceptual,
		Owner:           req.Creator,
		Creator:         req.Creator,
		License:         req.License,
		PreviousVersion: req.PreviousVersion,
		Platform:        req.Platform,
		Metadata:        req.Metadata,
		CreatedAt:       r.now().UTC(),
	}
	created, err := r.Records.Create(ctx, record)
	if err != nil {
		// The unique constraint is the authoritative duplicate guard; a
		// racing registration that committed after our cascade check
		// surfaces here.
		return RegisterContentResult{}, err
	}

	r.Events.EmitContentProtected(created, match)
	if r.Anchor != nil {
		r.Anchor.Submit(created)
	}
	return RegisterContentResult{Record: created, Flagged: match}, nil
}

func (r *RegisterContent) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}
