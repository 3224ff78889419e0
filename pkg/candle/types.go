package candle

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one floor-price observation of a collection.
type Sample struct {
	Time  time.Time       `json:"time"`  // observation time
	Price decimal.Decimal `json:"price"` // floor price in satoshi
}

// Candle summarises the samples of one clock-hour bucket.
// Time is the label of the bucket: the top of the hour after its first sample.
type Candle struct {
	Time  time.Time       `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}
