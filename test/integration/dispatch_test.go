//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	pg "github.com/CareOpsHQ/mednotify/internal/repository/postgres"
)

// Lifecycle tests run against a migrated database (IT_DB_DSN). They drive the
// pgx repository directly so the claim and transition queries are exercised
// exactly as the dispatcher runs them.

func TestClaimLeaseExclusivity(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	repo := pg.NewNotificationRepo(RepoDBOpen(t, cfg.DBDSN))
	ctx := context.Background()

	rid := RandID()
	SeedRecipient(t, sqlDB, rid, "claim@example.com", "+1000000001")

	n := NewPending(rid, notification.ChannelEmail)
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := repo.ClaimDue(ctx, 100, 30*time.Second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !containsID(claimed, n.ID) {
		t.Fatalf("expected %s in claim batch, got %d rows", n.ID, len(claimed))
	}

	// The lease is still live, so a second claim must skip the row.
	again, err := repo.ClaimDue(ctx, 100, 30*time.Second)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if containsID(again, n.ID) {
		t.Fatalf("row %s claimed twice while leased", n.ID)
	}

	if err := repo.Release(ctx, n.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	freed, err := repo.ClaimDue(ctx, 100, 30*time.Second)
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	if !containsID(freed, n.ID) {
		t.Fatalf("row %s not claimable after release", n.ID)
	}
}

func TestMarkSentIsTerminalForPending(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	repo := pg.NewNotificationRepo(RepoDBOpen(t, cfg.DBDSN))
	ctx := context.Background()

	rid := RandID()
	SeedRecipient(t, sqlDB, rid, "sent@example.com", "")

	n := NewPending(rid, notification.ChannelEmail)
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	if err := repo.MarkSent(ctx, n.ID, now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	status, attempts := GetStatus(t, sqlDB, n.ID)
	if status != string(notification.StatusSent) {
		t.Fatalf("status = %s, want sent", status)
	}
	if attempts != 0 {
		t.Fatalf("attempts = %d after success, want 0", attempts)
	}

	// Transitions only fire from pending. A repeated mark is rejected.
	if err := repo.MarkSent(ctx, n.ID, now); !errors.Is(err, pg.ErrNotFound) {
		t.Fatalf("second mark sent: err = %v, want ErrNotFound", err)
	}

	claimed, err := repo.ClaimDue(ctx, 100, time.Second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if containsID(claimed, n.ID) {
		t.Fatalf("sent row %s returned by claim", n.ID)
	}
}

func TestRescheduleThenFail(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	repo := pg.NewNotificationRepo(RepoDBOpen(t, cfg.DBDSN))
	ctx := context.Background()

	rid := RandID()
	SeedRecipient(t, sqlDB, rid, "retry@example.com", "")

	n := NewPending(rid, notification.ChannelEmail)
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Reschedule(ctx, n.ID, 1, time.Now().UTC().Add(time.Hour), "smtp timeout"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	status, attempts := GetStatus(t, sqlDB, n.ID)
	if status != string(notification.StatusPending) || attempts != 1 {
		t.Fatalf("after reschedule: status=%s attempts=%d", status, attempts)
	}

	// Deferred an hour out, so it is no longer due.
	claimed, err := repo.ClaimDue(ctx, 100, time.Second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if containsID(claimed, n.ID) {
		t.Fatalf("rescheduled row %s claimed before its due time", n.ID)
	}

	if err := repo.MarkFailed(ctx, n.ID, 3, "smtp timeout"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	status, attempts = GetStatus(t, sqlDB, n.ID)
	if status != string(notification.StatusFailed) || attempts != 3 {
		t.Fatalf("after fail: status=%s attempts=%d", status, attempts)
	}
}

func TestCancelWindow(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	repo := pg.NewNotificationRepo(RepoDBOpen(t, cfg.DBDSN))
	ctx := context.Background()

	rid := RandID()
	SeedRecipient(t, sqlDB, rid, "cancel@example.com", "")

	fresh := NewPending(rid, notification.ChannelEmail)
	fresh.ScheduledFor = time.Now().UTC().Add(time.Hour)
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := repo.Cancel(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !ok {
		t.Fatalf("cancel of untouched pending row refused")
	}
	if status, _ := GetStatus(t, sqlDB, fresh.ID); status != string(notification.StatusCancelled) {
		t.Fatalf("status = %s, want cancelled", status)
	}

	// A leased row is already in a worker's hands.
	leased := NewPending(rid, notification.ChannelEmail)
	if err := repo.Create(ctx, leased); err != nil {
		t.Fatalf("create leased: %v", err)
	}
	if _, err := repo.ClaimDue(ctx, 100, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	ok, err = repo.Cancel(ctx, leased.ID)
	if err != nil {
		t.Fatalf("cancel leased: %v", err)
	}
	if ok {
		t.Fatalf("cancel succeeded on a leased row")
	}
}

func TestResetForRetryGating(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	repo := pg.NewNotificationRepo(RepoDBOpen(t, cfg.DBDSN))
	ctx := context.Background()

	rid := RandID()
	SeedRecipient(t, sqlDB, rid, "reset@example.com", "")

	n := NewPending(rid, notification.ChannelEmail)
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Pending rows are not retryable.
	if err := repo.ResetForRetry(ctx, n.ID, time.Now().UTC()); !errors.Is(err, pg.ErrNotFound) {
		t.Fatalf("reset on pending: err = %v, want ErrNotFound", err)
	}

	if err := repo.MarkFailed(ctx, n.ID, 2, "provider 500"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.ResetForRetry(ctx, n.ID, time.Now().UTC()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	status, attempts := GetStatus(t, sqlDB, n.ID)
	if status != string(notification.StatusPending) {
		t.Fatalf("status = %s, want pending", status)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d after reset, want 2 (counter survives manual retry)", attempts)
	}

	// Exhausted rows stay failed.
	if err := repo.MarkSent(ctx, n.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.ResetForRetry(ctx, n.ID, time.Now().UTC()); !errors.Is(err, pg.ErrNotFound) {
		t.Fatalf("reset on sent: err = %v, want ErrNotFound", err)
	}
}

func containsID(batch []*notification.Notification, id string) bool {
	for _, n := range batch {
		if n.ID == id {
			return true
		}
	}
	return false
}
