package api

import (
	"net/http"
	"strings"

	"chartgate/pkg/candle"
	"chartgate/pkg/magiceden"

	"go.uber.org/zap"
)

const (
	popularLimit = 12
	allLimit     = 120
)

// PopularCollections is the public top of the ranking.
func (h *Handler) PopularCollections(w http.ResponseWriter, r *http.Request) {
	h.collections(w, r, popularLimit)
}

// AllCollections is the full ranking, for subscribers.
func (h *Handler) AllCollections(w http.ResponseWriter, r *http.Request) {
	h.collections(w, r, allLimit)
}

func (h *Handler) collections(w http.ResponseWriter, r *http.Request, defaultLimit int) {
	q, err := parseWindowQuery(r, defaultLimit)
	if err != nil {
		h.fail(w, r, "Failed to fetch Popular Collections", err)
		return
	}

	data, err := h.market.PopularCollections(r.Context(), q.Window, q.Limit)
	if err != nil {
		h.upstreamFailed(w, r, "Failed to fetch Popular Collections", err)
		return
	}
	if data == nil {
		data = []magiceden.Collection{}
	}
	writeData(w, http.StatusOK, "Popular Collections fetched successfully", data)
}

// tradingViewBar is one bar in the shape the chart widget consumes.
// Time is the bucket label in epoch milliseconds; prices are in BTC.
type tradingViewBar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	if symbol == "" {
		h.fail(w, r, "Failed to fetch data", &ValidationError{Problems: []string{"symbol is required"}})
		return
	}

	var (
		samples []candle.Sample
		err     error
	)
	if h.opts.ChartSource == "marketplace" {
		samples, err = h.market.Timeseries(r.Context(), symbol)
		if err != nil {
			h.upstreamFailed(w, r, "Failed to fetch data", err)
			return
		}
	} else {
		samples, err = h.store.PriceSamples(r.Context(), symbol, h.now().Add(-h.opts.ChartLookback))
		if err != nil {
			h.fail(w, r, "Failed to fetch data", err)
			return
		}
	}

	candles := candle.ToBTC(candle.AggregateHourly(samples))
	bars := make([]tradingViewBar, len(candles))
	for i, c := range candles {
		bars[i] = tradingViewBar{
			Time:  c.Time.UnixMilli(),
			Open:  c.Open.InexactFloat64(),
			High:  c.High.InexactFloat64(),
			Low:   c.Low.InexactFloat64(),
			Close: c.Close.InexactFloat64(),
		}
	}
	writeData(w, http.StatusOK, "Trading View data fetched successfully,"+symbol, bars)
}

func (h *Handler) upstreamFailed(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Warn(msg, zapRequestID(r), zap.Error(err))
	writeError(w, http.StatusBadGateway, msg)
}
