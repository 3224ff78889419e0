package memorystore

import "chartgate/pkg/candle"

// PriceMemory is a captured floor price tagged with its collection symbol.
type PriceMemory struct {
	Symbol string `json:"symbol"`
	candle.Sample
}
