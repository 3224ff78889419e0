package reconcile

import (
	"context"
	"time"

	"chartgate/internal/memorystore"
	"chartgate/pkg/candle"
	"chartgate/pkg/storage/postgres"

	"go.uber.org/zap"
)

// Snapshotter records the floor price of every ranked collection.
type Snapshotter struct {
	Feed      PriceFeed
	Store     PriceStore
	Memory    *memorystore.PriceStore
	Publisher Publisher
	Logger    *zap.Logger
	Window    string
	Limit     int
	Retention time.Duration
	Now       func() time.Time
}

// Capture stores one sample per collection, all stamped with the capture
// time, and hands the batch to the in-memory store and the publisher.
func (s *Snapshotter) Capture(ctx context.Context) (int, error) {
	prices, err := s.Feed.FloorPrices(ctx, s.Window, s.Limit)
	if err != nil {
		s.Logger.Error("failed to fetch floor prices", zap.Error(err))
		return 0, err
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	now = now.UTC()

	// one stamp for the whole batch
	records := make([]postgres.PriceSampleRecord, 0, len(prices))
	batch := make([]memorystore.PriceMemory, 0, len(prices))
	for _, p := range prices {
		records = append(records, postgres.PriceSampleRecord{Symbol: p.Symbol, Price: p.Price, Time: now})
		batch = append(batch, memorystore.PriceMemory{Symbol: p.Symbol, Sample: candle.Sample{Time: now, Price: p.Price}})
	}

	if err := s.Store.InsertPriceSamples(ctx, records); err != nil {
		s.Logger.Error("failed to store price samples", zap.Error(err))
		return 0, err
	}

	// mirror to memory and push to subscribers
	if s.Memory != nil {
		for _, p := range batch {
			s.Memory.Add(p)
		}
	}
	if s.Publisher != nil {
		s.Publisher.Publish(batch)
	}

	// prune samples past retention
	if s.Retention > 0 {
		deleted, err := s.Store.DeleteOldPriceSamples(ctx, now.Add(-s.Retention))
		if err != nil {
			s.Logger.Warn("failed to prune price samples", zap.Error(err))
		} else if deleted > 0 {
			s.Logger.Info("pruned price samples", zap.Int64("count", deleted))
		}
	}

	s.Logger.Info("captured floor prices", zap.Int("count", len(records)), zap.Time("time", now))
	return len(records), nil
}
