package magiceden

import (
	"time"

	"github.com/shopspring/decimal"
)

// Collection is one entry of the popular collections ranking.
type Collection struct {
	Symbol      string          `json:"collectionSymbol"` // e.g. "nodemonkes"
	Name        string          `json:"name"`
	Image       string          `json:"image"`
	FloorPrice  decimal.Decimal `json:"fp"`          // floor price in satoshi
	Volume      decimal.Decimal `json:"vol"`         // volume over the requested window
	TotalVolume decimal.Decimal `json:"totalVol"`    // all-time volume
	ListedCount int64           `json:"listedCount"` // items listed for sale
	OwnerCount  int64           `json:"ownerCount"`
}

// FloorPrice is the floor of one collection observed at Time.
type FloorPrice struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// timeseriesPoint is the raw shape of a collection timeseries row.
type timeseriesPoint struct {
	Time       string          `json:"time"`       // RFC3339 timestamp
	FloorPrice decimal.Decimal `json:"floorprice"` // satoshi
}
