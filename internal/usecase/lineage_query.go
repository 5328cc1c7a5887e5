package usecase

import (
	"context"
	"errors"

	"daon/internal/domain"
)

// DefaultMaxLineageDepth bounds provenance traversal so a manufactured
// cycle or an absurdly long chain terminates by truncation, never by
// hanging or erroring.
const DefaultMaxLineageDepth = 100

// LineageQuery walks previous_version pointers. Read-only.
type LineageQuery struct {
	Records  ContentLookup
	MaxDepth int
}

type LineageResult struct {
	Records   []domain.ContentRecord
	Truncated bool
	// MissingLink is the first previous_version hash that did not
	// resolve, when the chain ends on a dangling or forward reference.
	MissingLink string
}

// Lineage returns the chain starting at hash, oldest last. Missing links
// end the walk gracefully; revisiting a hash (a cycle) or reaching the
// depth bound truncates.
func (q *LineageQuery) Lineage(ctx context.Context, hash string) (LineageResult, error) {
	if q == nil || q.Records == nil {
		return LineageResult{}, errors.New("lineage query requires a content lookup")
	}
	maxDepth := q.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxLineageDepth
	}

	var result LineageResult
	visited := make(map[string]bool)
	current := hash
	for depth := 0; current != ""; depth++ {
		if depth >= maxDepth || visited[current] {
			result.Truncated = true
			break
		}
		visited[current] = true

		record, err := q.Records.GetByHash(ctx, current)
		if errors.Is(err, domain.ErrContentNotFound) {
			if depth == 0 {
				return LineageResult{}, err
			}
			result.MissingLink = current
			break
		}
		if err != nil {
			return LineageResult{}, err
		}
		result.Records = append(result.Records, record)
		current = record.PreviousVersion
	}
	return result, nil
}
