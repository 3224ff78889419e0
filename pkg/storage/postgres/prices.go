package postgres

import (
	"context"
	"fmt"
	"time"

	"chartgate/pkg/candle"
)

// InsertPriceSamples stores a capture batch.
func (p *PostgresClient) InsertPriceSamples(ctx context.Context, records []PriceSampleRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := p.DB.WithContext(ctx).CreateInBatches(records, 100).Error; err != nil {
		return fmt.Errorf("insert %d price samples: %w", len(records), err)
	}
	return nil
}

// PriceSamples returns the samples of a symbol captured at or after since,
// in ascending time order.
func (p *PostgresClient) PriceSamples(ctx context.Context, symbol string, since time.Time) ([]candle.Sample, error) {
	var records []PriceSampleRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND time >= ?", symbol, since.UTC()).
		Order("time, id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	samples := make([]candle.Sample, len(records))
	for i, r := range records {
		samples[i] = candle.Sample{Time: r.Time.UTC(), Price: r.Price}
	}
	return samples, nil
}

// DeleteOldPriceSamples removes samples captured before the cutoff.
func (p *PostgresClient) DeleteOldPriceSamples(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("time < ?", before.UTC()).
		Delete(&PriceSampleRecord{})
	return tx.RowsAffected, tx.Error
}
