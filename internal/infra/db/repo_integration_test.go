//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"daon/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, gdb)
	store := &Store{DB: gdb}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func lockTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(424242424)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(424242424)")
		_ = conn.Close()
	})
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, table := range []string{
		"webhook_deliveries", "webhooks", "duplicate_detections", "transfer_history", "content_records",
	} {
		if err := db.Exec("TRUNCATE TABLE " + table + " CASCADE").Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

func testRecord(i int) domain.ContentRecord {
	return domain.ContentRecord{
		ContentHash:    "sha256:" + fmt.Sprintf("%064x", i),
		NormalizedHash: "sha256:" + fmt.Sprintf("%064x", 1000+i),
		PerceptualHash: fmt.Sprintf("simhash:%016x", i),
		Owner:          "alice",
		Creator:        "alice",
		License:        domain.LicenseLiberationV1,
		Platform:       "river-press",
		Metadata:       map[string]string{"title": "work"},
		CreatedAt:      time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestContentRepository_CreateAndGet(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewContentRepository(gdb)
	ctx := context.Background()

	created, err := repo.Create(ctx, testRecord(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByHash(ctx, created.ContentHash)
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got.Owner != "alice" || got.License != domain.LicenseLiberationV1 {
		t.Fatalf("record = %+v", got)
	}
	if got.Metadata["title"] != "work" {
		t.Fatalf("metadata = %v", got.Metadata)
	}

	if _, err := repo.GetByNormalizedHash(ctx, created.NormalizedHash); err != nil {
		t.Fatalf("get by normalized: %v", err)
	}
	if _, err := repo.GetByPerceptualHash(ctx, created.PerceptualHash); err != nil {
		t.Fatalf("get by perceptual: %v", err)
	}
	if _, err := repo.GetByHash(ctx, testRecord(2).ContentHash); !errors.Is(err, domain.ErrContentNotFound) {
		t.Fatalf("missing record got %v", err)
	}
}

func TestContentRepository_DuplicateInsert(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewContentRepository(gdb)
	ctx := context.Background()

	if _, err := repo.Create(ctx, testRecord(1)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := repo.Create(ctx, testRecord(1))
	if !errors.Is(err, domain.ErrDuplicateRejected) {
		t.Fatalf("got %v, want ErrDuplicateRejected", err)
	}
}

func TestContentRepository_TransferRace(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewContentRepository(gdb)
	ctx := context.Background()

	rec, err := repo.Create(ctx, testRecord(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC()
	targets := []string{"bob", "carol", "dave"}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = repo.Transfer(ctx, rec.ContentHash, "alice", target, at)
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
			t.Fatalf("unexpected transfer error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("got %d winners, want 1", wins)
	}

	final, err := repo.GetByHash(ctx, rec.ContentHash)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(final.TransferHistory) != 1 {
		t.Fatalf("history = %d entries, want 1", len(final.TransferHistory))
	}
	if final.Owner == "alice" {
		t.Fatal("owner unchanged after a winning transfer")
	}
}

func TestContentRepository_AttachAnchor(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewContentRepository(gdb)
	ctx := context.Background()

	rec, err := repo.Create(ctx, testRecord(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	anchor := domain.LedgerAnchor{
		TxReference: "tx-abc123",
		Height:      42,
		AnchoredAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.AttachAnchor(ctx, rec.ContentHash, anchor); err != nil {
		t.Fatalf("attach anchor: %v", err)
	}

	got, err := repo.GetByHash(ctx, rec.ContentHash)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Anchor == nil || got.Anchor.TxReference != "tx-abc123" || got.Anchor.Height != 42 {
		t.Fatalf("anchor = %+v", got.Anchor)
	}
}

func TestDeliveryRepository_ClaimLifecycle(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	hooks := NewWebhookRepository(gdb)
	deliveries := NewDeliveryRepository(gdb)
	ctx := context.Background()

	hook, err := hooks.Create(ctx, domain.Webhook{
		EndpointURL:      "https://receiver.example/hook",
		SigningSecret:    "s",
		SubscribedEvents: []string{domain.EventContentProtected},
		Enabled:          true,
		MaxRetries:       3,
		RetryDelay:       30 * time.Second,
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	now := time.Now().UTC()
	created, err := deliveries.Create(ctx, domain.WebhookDelivery{
		WebhookID:   hook.ID,
		EventID:     "evt-1",
		EventType:   domain.EventContentProtected,
		Payload:     []byte(`{"event_id":"evt-1"}`),
		NextRetryAt: &now,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}

	claimed, err := deliveries.ClaimDue(ctx, now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Status != domain.DeliveryInFlight {
		t.Fatalf("claimed = %+v", claimed)
	}

	// A second scan sees nothing: in_flight rows are not claimable.
	again, err := deliveries.ClaimDue(ctx, now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("claimed twice: %+v", again)
	}

	d := claimed[0]
	d.Status = domain.DeliverySuccess
	d.AttemptCount = 1
	d.LastHTTPStatus = 200
	d.NextRetryAt = nil
	d.ClaimedAt = nil
	if err := deliveries.Update(ctx, d); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, err := deliveries.ListByWebhook(ctx, hook.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != created.ID || rows[0].Status != domain.DeliverySuccess {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestDeliveryRepository_ReleaseStale(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	hooks := NewWebhookRepository(gdb)
	deliveries := NewDeliveryRepository(gdb)
	ctx := context.Background()

	hook, err := hooks.Create(ctx, domain.Webhook{
		EndpointURL:      "https://receiver.example/hook",
		SigningSecret:    "s",
		SubscribedEvents: []string{domain.EventContentProtected},
		Enabled:          true,
		MaxRetries:       3,
		RetryDelay:       time.Second,
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	now := time.Now().UTC()
	if _, err := deliveries.Create(ctx, domain.WebhookDelivery{
		WebhookID:   hook.ID,
		EventID:     "evt-1",
		EventType:   domain.EventContentProtected,
		Payload:     []byte(`{}`),
		NextRetryAt: &now,
	}); err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	if _, err := deliveries.ClaimDue(ctx, now.Add(time.Second), 10); err != nil {
		t.Fatalf("claim: %v", err)
	}

	released, err := deliveries.ReleaseStale(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("release stale: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}

	claimed, err := deliveries.ClaimDue(ctx, now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("stale row not claimable again: %+v", claimed)
	}
}
