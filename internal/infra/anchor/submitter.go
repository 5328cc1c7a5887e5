package anchor

import (
	"context"
	"log"

	"daon/internal/domain"
)

// AnchorAttacher persists the anchor on the already-registered record.
type AnchorAttacher interface {
	AttachAnchor(ctx context.Context, hash string, anchor domain.LedgerAnchor) error
}

// Submitter runs anchoring off the registration path. Submit never
// blocks: records queue on a bounded channel and a full queue drops the
// submission with a log line, because a missing anchor is never worth a
// slow registration.
type Submitter struct {
	client  *Client
	records AnchorAttacher
	queue   chan domain.ContentRecord
	done    chan struct{}
}

const defaultQueueDepth = 256

func NewSubmitter(client *Client, records AnchorAttacher) *Submitter {
	return &Submitter{
		client:  client,
		records: records,
		queue:   make(chan domain.ContentRecord, defaultQueueDepth),
		done:    make(chan struct{}),
	}
}

func (s *Submitter) Submit(record domain.ContentRecord) {
	if s == nil {
		return
	}
	select {
	case s.queue <- record:
	default:
		log.Printf("anchor: queue full, dropping submission for %s", record.ContentHash)
	}
}

// Run consumes the queue until ctx is cancelled.
func (s *Submitter) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case record := <-s.queue:
			s.anchorOne(ctx, record)
		}
	}
}

func (s *Submitter) Wait() { <-s.done }

func (s *Submitter) anchorOne(ctx context.Context, record domain.ContentRecord) {
	anchor, err := s.client.Anchor(ctx, record)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("anchor: submit %s: %v", record.ContentHash, err)
		}
		return
	}
	if err := s.records.AttachAnchor(ctx, record.ContentHash, anchor); err != nil {
		log.Printf("anchor: attach %s to %s: %v", anchor.TxReference, record.ContentHash, err)
		return
	}
	log.Printf("anchor: %s anchored as %s at height %d", record.ContentHash, anchor.TxReference, anchor.Height)
}
