package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chartgate/pkg/storage/postgres"

	"github.com/shopspring/decimal"
)

func seedUserAndPlan(t *testing.T, client *postgres.PostgresClient) (*postgres.UserRecord, *postgres.PlanRecord) {
	t.Helper()
	ctx := context.Background()

	plan := &postgres.PlanRecord{
		Name:         "pro",
		Description:  "all collections",
		MonthlyPrice: decimal.NewFromInt(50000),
		YearlyPrice:  decimal.NewFromInt(500000),
	}
	if err := client.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	user := &postgres.UserRecord{Email: "holder@example.com"}
	if err := client.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user, plan
}

func initiate(exp time.Time) postgres.ActivateFunc {
	return func(u *postgres.UserRecord, tx *postgres.TransactionRecord) error {
		u.SubscriptionActive = true
		u.PlanID = &tx.PlanID
		u.Cadence = tx.Cadence
		u.ExpirationDate = &exp
		pd := tx.PurchaseDate
		u.PurchaseDate = &pd
		return nil
	}
}

// go test -v --run ^TestTransactionLifecycle$
func TestTransactionLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	user, plan := seedUserAndPlan(t, client)

	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	record := &postgres.TransactionRecord{
		UserID:         user.ID,
		Hash:           "de665cb8",
		PurchaseDate:   now.Add(-time.Hour),
		ExpirationDate: now.Add(-time.Hour).AddDate(0, 1, 0),
		PlanID:         plan.ID,
		Cadence:        postgres.CadenceMonthly,
	}
	if err := client.CreateTransaction(ctx, record); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	dup := *record
	dup.ID = 0
	if err := client.CreateTransaction(ctx, &dup); !errors.Is(err, postgres.ErrDuplicateHash) {
		t.Fatalf("expected ErrDuplicateHash, got %v", err)
	}

	pending, err := client.ListPendingTransactions(ctx, now.Add(-72*time.Hour), now)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Hash != "de665cb8" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	exp := record.ExpirationDate
	updated, err := client.ConfirmTransaction(ctx, record.ID, now, initiate(exp))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !updated.SubscriptionActive || updated.ExpirationDate == nil || !updated.ExpirationDate.Equal(exp) {
		t.Errorf("unexpected user after confirm: %+v", updated)
	}

	stored, err := client.GetTransaction(ctx, record.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if !stored.Verified() || stored.VerifiedAt == nil || stored.ActivatedAt == nil {
		t.Errorf("transaction not verified and activated: %+v", stored)
	}

	// second confirmation is refused and leaves the user untouched
	if _, err := client.ConfirmTransaction(ctx, record.ID, now, initiate(exp.AddDate(1, 0, 0))); !errors.Is(err, postgres.ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}
	reloaded, _ := client.GetUser(ctx, user.ID)
	if !reloaded.ExpirationDate.Equal(exp) {
		t.Errorf("expiration changed by a repeated confirm: %s", reloaded.ExpirationDate)
	}

	pending, _ = client.ListPendingTransactions(ctx, now.Add(-72*time.Hour), now)
	if len(pending) != 0 {
		t.Errorf("verified transaction still listed as pending")
	}
}

// go test -v --run ^TestConfirmRollsBackOnActivationError$
func TestConfirmRollsBackOnActivationError(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	user, plan := seedUserAndPlan(t, client)

	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	record := &postgres.TransactionRecord{
		UserID: user.ID, Hash: "rollback", PurchaseDate: now, ExpirationDate: now.AddDate(0, 1, 0),
		PlanID: plan.ID, Cadence: postgres.CadenceMonthly,
	}
	if err := client.CreateTransaction(ctx, record); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	boom := errors.New("boom")
	_, err := client.ConfirmTransaction(ctx, record.ID, now, func(*postgres.UserRecord, *postgres.TransactionRecord) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected activation error, got %v", err)
	}

	stored, _ := client.GetTransaction(ctx, record.ID)
	if stored.Status != postgres.StatusPending {
		t.Errorf("expected rollback to pending, got %s", stored.Status)
	}
}

// go test -v --run ^TestConcurrentConfirmsStack$
func TestConcurrentConfirmsStack(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	user, plan := seedUserAndPlan(t, client)

	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	var ids []uint
	for _, hash := range []string{"renew-1", "renew-2", "renew-3"} {
		record := &postgres.TransactionRecord{
			UserID: user.ID, Hash: hash, PurchaseDate: now, ExpirationDate: now.AddDate(0, 1, 0),
			PlanID: plan.ID, Cadence: postgres.CadenceMonthly,
		}
		if err := client.CreateTransaction(ctx, record); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
		ids = append(ids, record.ID)
	}

	// every confirm adds one day on top of what it read
	addDay := func(u *postgres.UserRecord, _ *postgres.TransactionRecord) error {
		base := now
		if u.ExpirationDate != nil {
			base = *u.ExpirationDate
		}
		exp := base.Add(24 * time.Hour)
		u.ExpirationDate = &exp
		u.SubscriptionActive = true
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.ConfirmTransaction(ctx, id, now, addDay); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("confirm: %v", err)
	}

	got, err := client.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if want := now.Add(72 * time.Hour); !got.ExpirationDate.Equal(want) {
		t.Errorf("expiration: got %s, want %s", got.ExpirationDate, want)
	}
}

// go test -v --run ^TestAbandonAndRepair$
func TestAbandonAndRepair(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	user, plan := seedUserAndPlan(t, client)
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	old := &postgres.TransactionRecord{
		UserID: user.ID, Hash: "old", PurchaseDate: now.AddDate(0, 0, -5), ExpirationDate: now.AddDate(0, 1, -5),
		PlanID: plan.ID, Cadence: postgres.CadenceMonthly,
	}
	fresh := &postgres.TransactionRecord{
		UserID: user.ID, Hash: "fresh", PurchaseDate: now.AddDate(0, 0, -1), ExpirationDate: now.AddDate(0, 1, -1),
		PlanID: plan.ID, Cadence: postgres.CadenceMonthly,
	}
	for _, r := range []*postgres.TransactionRecord{old, fresh} {
		if err := client.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.Hash, err)
		}
	}

	n, err := client.AbandonTransactions(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 abandoned, got %d", n)
	}
	stored, _ := client.GetTransaction(ctx, old.ID)
	if stored.Status != postgres.StatusAbandoned {
		t.Errorf("expected old to be abandoned, got %s", stored.Status)
	}

	// simulate a verification that never reached the subscription
	if err := client.DB.Model(&postgres.TransactionRecord{}).Where("id = ?", fresh.ID).
		Updates(map[string]any{"status": postgres.StatusVerified, "verified_at": now}).Error; err != nil {
		t.Fatalf("force verify: %v", err)
	}

	unactivated, err := client.ListUnactivatedTransactions(ctx)
	if err != nil {
		t.Fatalf("list unactivated: %v", err)
	}
	if len(unactivated) != 1 || unactivated[0].ID != fresh.ID {
		t.Fatalf("unexpected unactivated list: %+v", unactivated)
	}

	if _, err := client.ActivateTransaction(ctx, fresh.ID, now, initiate(fresh.ExpirationDate)); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := client.ActivateTransaction(ctx, fresh.ID, now, initiate(fresh.ExpirationDate)); !errors.Is(err, postgres.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second activation, got %v", err)
	}
	reloaded, _ := client.GetUser(ctx, user.ID)
	if !reloaded.SubscriptionActive {
		t.Error("repair should activate the subscription")
	}
}
