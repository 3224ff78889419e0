package reconcile

import (
	"context"
	"time"

	"chartgate/internal/subscription"

	"go.uber.org/zap"
)

// Repairer finds verified payments whose subscription update never landed
// and applies it.
type Repairer struct {
	Store  TransactionStore
	Logger *zap.Logger
	Now    func() time.Time
}

func (r *Repairer) Sweep(ctx context.Context) int {
	txs, err := r.Store.ListUnactivatedTransactions(ctx)
	if err != nil {
		r.Logger.Error("failed to list unactivated transactions", zap.Error(err))
		return 0
	}

	repaired := 0
	for _, tx := range txs {
		now := time.Now()
		if r.Now != nil {
			now = r.Now()
		}

		// one at a time, in purchase order, so renewals of one user stack
		if _, err := r.Store.ActivateTransaction(ctx, tx.ID, now, subscription.Activator(now)); err != nil {
			r.Logger.Warn("failed to repair activation", zap.String("hash", tx.Hash), zap.Error(err))
			continue
		}
		r.Logger.Info("repaired subscription activation", zap.String("hash", tx.Hash), zap.Uint("user_id", tx.UserID))
		repaired++
	}
	return repaired
}
