package usecase

import (
	"context"
	"errors"
	"log"
	"time"

	"daon/internal/domain"

	"github.com/google/uuid"
)

// DuplicateCheck runs the ordered, short-circuiting three-tier cascade:
// exact, then normalized, then perceptual. Every match is recorded as a
// detection event regardless of what the caller does with the result.
type DuplicateCheck struct {
	Records    ContentLookup
	Detections DetectionRepository
	Clock      Clock
}

func NewDuplicateCheck(records ContentLookup, detections DetectionRepository, clock Clock) *DuplicateCheck {
	return &DuplicateCheck{Records: records, Detections: detections, Clock: clock}
}

// Check returns the first matching tier, or nil when the submission is
// novel. Lookups are read-only; a registration committing concurrently
// may be missed here, which is acceptable because the storage uniqueness
// constraint is the real guard at creation time.
func (d *DuplicateCheck) Check(ctx context.Context, identity domain.ContentIdentity, callerMeta map[string]string) (*domain.DuplicateMatch, error) {
	if d == nil || d.Records == nil {
		return nil, errors.New("duplicate check requires a content lookup")
	}

	tiers := []struct {
		level  domain.MatchLevel
		hash   string
		lookup func(context.Context, string) (domain.ContentRecord, error)
	}{
		{domain.MatchExact, identity.Exact, d.Records.GetByHash},
		{domain.MatchNormalized, identity.Normalized, d.Records.GetByNormalizedHash},
		{domain.MatchPerceptual, identity.Perceptual, d.Records.GetByPerceptualHash},
	}

	for _, tier := range tiers {
		record, err := tier.lookup(ctx, tier.hash)
		if errors.Is(err, domain.ErrContentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		d.recordDetection(ctx, identity.Exact, tier.level, record.ContentHash, callerMeta)
		return &domain.DuplicateMatch{Level: tier.level, Record: record}, nil
	}
	return nil, nil
}

// recordDetection appends the audit row. Detection persistence failing
// must not turn a successful check into an error; the failure is logged
// so a dead audit trail is visible to operators.
func (d *DuplicateCheck) recordDetection(ctx context.Context, submitted string, level domain.MatchLevel, matched string, callerMeta map[string]string) {
	if d.Detections == nil {
		return
	}
	_, err := d.Detections.Append(ctx, domain.DetectionEvent{
		ID:            uuid.NewString(),
		SubmittedHash: submitted,
		MatchedLevel:  level,
		MatchedRecord: matched,
		CallerMeta:    callerMeta,
		DetectedAt:    d.now().UTC(),
	})
	if err != nil {
		log.Printf("duplicate check: append detection for %s: %v", submitted, err)
	}
}

func (d *DuplicateCheck) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}
