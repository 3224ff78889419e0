// Package reconcile runs the scheduled sweeps that keep payments,
// subscriptions and captured prices in step with the outside world.
package reconcile

import (
	"context"
	"sync"
	"time"

	"chartgate/internal/memorystore"
	"chartgate/pkg/magiceden"
	"chartgate/pkg/storage/postgres"
)

type TransactionStore interface {
	AbandonTransactions(ctx context.Context, cutoff time.Time) (int64, error)
	ListPendingTransactions(ctx context.Context, since, until time.Time) ([]postgres.TransactionRecord, error)
	ConfirmTransaction(ctx context.Context, id uint, now time.Time, activate postgres.ActivateFunc) (*postgres.UserRecord, error)
	ListUnactivatedTransactions(ctx context.Context) ([]postgres.TransactionRecord, error)
	ActivateTransaction(ctx context.Context, id uint, now time.Time, activate postgres.ActivateFunc) (*postgres.UserRecord, error)
}

type UserStore interface {
	ListExpiredUsers(ctx context.Context, now time.Time) ([]postgres.UserRecord, error)
	ExpireUser(ctx context.Context, id uint, now time.Time) (bool, error)
	ListUsersEndingSoon(ctx context.Context, now time.Time, window time.Duration) ([]postgres.UserRecord, error)
	MarkReminded(ctx context.Context, id uint, at time.Time) error
}

type PriceStore interface {
	InsertPriceSamples(ctx context.Context, records []postgres.PriceSampleRecord) error
	DeleteOldPriceSamples(ctx context.Context, before time.Time) (int64, error)
}

// ChainVerifier reports whether a payment is mined.
type ChainVerifier interface {
	IsConfirmed(ctx context.Context, txid string) (bool, error)
}

// PendingPool lists broadcast but unconfirmed transaction ids.
type PendingPool interface {
	PendingTxids(ctx context.Context) (map[string]struct{}, error)
}

type PriceFeed interface {
	FloorPrices(ctx context.Context, window string, limit int) ([]magiceden.FloorPrice, error)
}

// Publisher receives every captured batch, e.g. the live price hub.
type Publisher interface {
	Publish(batch []memorystore.PriceMemory)
}

// forEach runs fn for every item with at most limit in flight and returns
// once all of them have settled.
func forEach[T any](items []T, limit int, fn func(T)) {
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for _, item := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			fn(item)
		}()
	}
	wg.Wait()
}
