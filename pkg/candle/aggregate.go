package candle

import (
	"time"

	"github.com/shopspring/decimal"
)

// satsPerBTC is the exponent between satoshi and BTC units.
const satsPerBTC = 8

// AggregateHourly folds samples sorted by time into hourly candles.
//
// A bucket holds consecutive samples of the same UTC hour and is labelled with
// the following hour. When the next sample belongs to another hour, its price
// also folds into the closing bucket (high, low and close) so that adjacent
// candles join without a gap. The last bucket is flushed as is.
func AggregateHourly(samples []Sample) []Candle {
	candles := make([]Candle, 0)
	var current *Candle

	for i, s := range samples {
		if current == nil {
			current = &Candle{
				Time:  bucketOf(s.Time).Add(time.Hour),
				Open:  s.Price,
				High:  s.Price,
				Low:   s.Price,
				Close: s.Price,
			}
		} else {
			current.fold(s.Price)
		}

		if i == len(samples)-1 {
			candles = append(candles, *current)
			break
		}

		next := samples[i+1]
		if !bucketOf(next.Time).Equal(bucketOf(s.Time)) {
			current.fold(next.Price)
			candles = append(candles, *current)
			current = nil
		}
	}

	return candles
}

// ToBTC converts satoshi-denominated candles into BTC.
func ToBTC(candles []Candle) []Candle {
	out := make([]Candle, len(candles))
	for i, c := range candles {
		out[i] = Candle{
			Time:  c.Time,
			Open:  c.Open.Shift(-satsPerBTC),
			High:  c.High.Shift(-satsPerBTC),
			Low:   c.Low.Shift(-satsPerBTC),
			Close: c.Close.Shift(-satsPerBTC),
		}
	}
	return out
}

func (c *Candle) fold(price decimal.Decimal) {
	c.High = decimal.Max(c.High, price)
	c.Low = decimal.Min(c.Low, price)
	c.Close = price
}

func bucketOf(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
