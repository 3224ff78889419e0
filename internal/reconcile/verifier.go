package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chartgate/internal/subscription"
	"chartgate/pkg/notify"
	"chartgate/pkg/storage/postgres"

	"go.uber.org/zap"
)

// VerifyReport summarises one verification sweep.
type VerifyReport struct {
	Abandoned int64
	Selected  int
	Verified  int
	Pending   int
	Failed    int
}

// Verifier confirms pending payments against the chain and activates the
// subscriptions they pay for.
type Verifier struct {
	Store       TransactionStore
	Chain       ChainVerifier
	Pool        PendingPool
	Notifier    notify.Sender
	Logger      *zap.Logger
	Window      time.Duration
	Concurrency int
	Now         func() time.Time
}

// Sweep abandons payments that fell out of the window, then checks every
// pending payment inside it. One payment failing never stops the others;
// a failed check leaves the payment pending for the next sweep. Payments of
// the same user are applied one after another so renewals stack.
func (v *Verifier) Sweep(ctx context.Context) VerifyReport {
	now := v.now()
	since := now.Add(-v.Window)

	var report VerifyReport

	abandoned, err := v.Store.AbandonTransactions(ctx, since)
	if err != nil {
		v.Logger.Error("failed to abandon stale transactions", zap.Error(err))
	} else if abandoned > 0 {
		v.Logger.Info("abandoned stale transactions", zap.Int64("count", abandoned), zap.Time("cutoff", since))
	}
	report.Abandoned = abandoned

	txs, err := v.Store.ListPendingTransactions(ctx, since, now)
	if err != nil {
		v.Logger.Error("failed to list pending transactions", zap.Error(err))
		return report
	}
	report.Selected = len(txs)
	if len(txs) == 0 {
		return report
	}

	// fetched at most once per sweep, only when something is unconfirmed
	pending := sync.OnceValues(func() (map[string]struct{}, error) {
		return v.Pool.PendingTxids(ctx)
	})

	// users run concurrently; one user's payments run in purchase order
	var verified, stillPending, failed atomic.Int64
	forEach(byUser(txs), v.Concurrency, func(group []postgres.TransactionRecord) {
		for _, tx := range group {
			switch v.check(ctx, tx, now, pending) {
			case postgres.StatusVerified:
				verified.Add(1)
			case postgres.StatusPending:
				stillPending.Add(1)
			default:
				failed.Add(1)
			}
		}
	})

	report.Verified = int(verified.Load())
	report.Pending = int(stillPending.Load())
	report.Failed = int(failed.Load())

	v.Logger.Info("verification sweep finished",
		zap.Int("selected", report.Selected),
		zap.Int("verified", report.Verified),
		zap.Int("pending", report.Pending),
		zap.Int("failed", report.Failed),
	)
	return report
}

// check returns verified, pending, or "" on failure.
func (v *Verifier) check(ctx context.Context, tx postgres.TransactionRecord, now time.Time,
	pending func() (map[string]struct{}, error)) postgres.TransactionStatus {
	log := v.Logger.With(zap.String("hash", tx.Hash), zap.Uint("user_id", tx.UserID))

	confirmed, err := v.Chain.IsConfirmed(ctx, tx.Hash)
	if err != nil {
		log.Warn("chain verification failed", zap.Error(err))
		return ""
	}

	if !confirmed {
		ids, err := pending()
		switch {
		case err != nil:
			log.Warn("transaction not confirmed, pending pool unavailable", zap.Error(err))
		case contains(ids, tx.Hash):
			log.Info("transaction not verified yet")
		default:
			log.Info("transaction not found in mempool")
		}
		return postgres.StatusPending
	}

	user, err := v.Store.ConfirmTransaction(ctx, tx.ID, now, subscription.Activator(now))
	if errors.Is(err, postgres.ErrNotPending) {
		log.Debug("transaction already settled")
		return postgres.StatusVerified
	}
	if err != nil {
		log.Error("failed to confirm transaction", zap.Error(err))
		return ""
	}
	log.Info("transaction verified", zap.Timep("expiration_date", user.ExpirationDate))

	if _, err := v.Notifier.Send(ctx, notify.Message{
		To:       user.Email,
		Template: notify.TemplateTransactionVerified,
		Data:     map[string]string{"hash": tx.Hash},
	}); err != nil {
		log.Warn("failed to send verification notice", zap.Error(err))
	}
	return postgres.StatusVerified
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// byUser groups payments per owner, keeping their order.
func byUser(txs []postgres.TransactionRecord) [][]postgres.TransactionRecord {
	index := make(map[uint]int)
	var groups [][]postgres.TransactionRecord
	for _, tx := range txs {
		i, ok := index[tx.UserID]
		if !ok {
			i = len(groups)
			index[tx.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], tx)
	}
	return groups
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
