package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"daon/internal/domain"
	"daon/internal/infra/memstore"
	"daon/internal/license"
)

func seedRecord(t *testing.T, records *memstore.ContentStore, owner string) domain.ContentRecord {
	t.Helper()
	rec, err := records.Create(context.Background(), domain.ContentRecord{
		ContentHash:    "sha256:" + fmt.Sprintf("%064d", 1),
		NormalizedHash: "sha256:" + fmt.Sprintf("%064d", 2),
		PerceptualHash: "simhash:0000000000000001",
		Owner:          owner,
		Creator:        owner,
		License:        domain.LicenseLiberationV1,
		CreatedAt:      fixedTime,
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func TestTransferOwnership(t *testing.T) {
	records := memstore.NewContentStore()
	sink := &captureSink{}
	rec := seedRecord(t, records, "alice")

	transfer := NewTransferOwnership(records, license.NewTransferPolicyRegistry(), NewEventEmitter(sink, fixedClock), fixedClock)
	updated, err := transfer.Execute(context.Background(), rec.ContentHash, "alice", "bob")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if updated.Owner != "bob" {
		t.Fatalf("owner = %q, want bob", updated.Owner)
	}
	if updated.Creator != "alice" {
		t.Fatalf("creator mutated to %q", updated.Creator)
	}
	if len(updated.TransferHistory) != 1 {
		t.Fatalf("history length = %d", len(updated.TransferHistory))
	}
	entry := updated.TransferHistory[0]
	if entry.FromOwner != "alice" || entry.ToOwner != "bob" || !entry.At.Equal(fixedTime) {
		t.Fatalf("history entry = %+v", entry)
	}

	events := sink.byType(domain.EventContentTransferred)
	if len(events) != 1 || events[0].Data["to"] != "bob" {
		t.Fatalf("transferred events = %+v", events)
	}
}

func TestTransferOwnershipRejectsNonOwner(t *testing.T) {
	records := memstore.NewContentStore()
	sink := &captureSink{}
	rec := seedRecord(t, records, "alice")

	transfer := NewTransferOwnership(records, license.NewTransferPolicyRegistry(), NewEventEmitter(sink, fixedClock), fixedClock)
	_, err := transfer.Execute(context.Background(), rec.ContentHash, "mallory", "mallory-two")
	if !errors.Is(err, domain.ErrUnauthorizedTransfer) {
		t.Fatalf("got %v, want ErrUnauthorizedTransfer", err)
	}
	if got, _ := records.GetByHash(context.Background(), rec.ContentHash); got.Owner != "alice" {
		t.Fatalf("owner changed to %q after rejected transfer", got.Owner)
	}
	if len(sink.byType(domain.EventContentTransferred)) != 0 {
		t.Fatal("rejected transfer emitted an event")
	}
}

func TestTransferOwnershipUnknownContent(t *testing.T) {
	transfer := NewTransferOwnership(memstore.NewContentStore(), license.NewTransferPolicyRegistry(), nil, fixedClock)
	_, err := transfer.Execute(context.Background(), "sha256:"+fmt.Sprintf("%064d", 9), "alice", "bob")
	if !errors.Is(err, domain.ErrContentNotFound) {
		t.Fatalf("got %v, want ErrContentNotFound", err)
	}
}

func TestTransferOwnershipSelfTransfer(t *testing.T) {
	records := memstore.NewContentStore()
	rec := seedRecord(t, records, "alice")
	transfer := NewTransferOwnership(records, license.NewTransferPolicyRegistry(), nil, fixedClock)
	if _, err := transfer.Execute(context.Background(), rec.ContentHash, "alice", "alice"); err == nil {
		t.Fatal("self transfer accepted")
	}
}

// Two transfers racing from the same claimed owner: exactly one wins,
// the loser observes an authorization failure, and the history records
// a single entry.
func TestTransferOwnershipConcurrent(t *testing.T) {
	records := memstore.NewContentStore()
	sink := &captureSink{}
	rec := seedRecord(t, records, "alice")
	transfer := NewTransferOwnership(records, license.NewTransferPolicyRegistry(), NewEventEmitter(sink, fixedClock), fixedClock)

	targets := []string{"bob", "carol", "dave", "erin"}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = transfer.Execute(context.Background(), rec.ContentHash, "alice", target)
		}(i, target)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrUnauthorizedTransfer):
		default:
			t.Fatalf("unexpected race outcome: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("got %d winning transfers, want exactly 1", wins)
	}

	final, err := records.GetByHash(context.Background(), rec.ContentHash)
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if len(final.TransferHistory) != 1 {
		t.Fatalf("history length = %d after race, want 1", len(final.TransferHistory))
	}
	if len(sink.byType(domain.EventContentTransferred)) != 1 {
		t.Fatal("race emitted more than one transferred event")
	}
}
