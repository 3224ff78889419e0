// Package api exposes plans, payments, collection data and charts over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"chartgate/internal/memorystore"
	"chartgate/pkg/candle"
	"chartgate/pkg/magiceden"
	"chartgate/pkg/storage/postgres"

	"go.uber.org/zap"
)

type Store interface {
	IsHealthy(ctx context.Context) bool

	ListPlans(ctx context.Context) ([]postgres.PlanRecord, error)
	GetPlan(ctx context.Context, id uint) (*postgres.PlanRecord, error)
	CreatePlan(ctx context.Context, plan *postgres.PlanRecord) error
	UpdatePlan(ctx context.Context, id uint, changes map[string]any) (*postgres.PlanRecord, error)
	DeletePlan(ctx context.Context, id uint) error

	GetUser(ctx context.Context, id uint) (*postgres.UserRecord, error)

	CreateTransaction(ctx context.Context, record *postgres.TransactionRecord) error
	ListTransactions(ctx context.Context, limit int) ([]postgres.TransactionRecord, error)

	PriceSamples(ctx context.Context, symbol string, since time.Time) ([]candle.Sample, error)
}

type Marketplace interface {
	PopularCollections(ctx context.Context, window string, limit int) ([]magiceden.Collection, error)
	Timeseries(ctx context.Context, symbol string) ([]candle.Sample, error)
}

// Options tune the handler; zero values fall back to defaults.
type Options struct {
	// ChartSource is "store" for captured snapshots or "marketplace".
	ChartSource   string
	ChartLookback time.Duration
}

type Handler struct {
	store  Store
	market Marketplace
	memory *memorystore.PriceStore
	hub    *Hub
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

func NewHandler(store Store, market Marketplace, memory *memorystore.PriceStore, hub *Hub, logger *zap.Logger, opts Options) *Handler {
	if opts.ChartSource == "" {
		opts.ChartSource = "store"
	}
	if opts.ChartLookback <= 0 {
		opts.ChartLookback = 30 * 24 * time.Hour
	}
	return &Handler{
		store:  store,
		market: market,
		memory: memory,
		hub:    hub,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Routes builds the mux with every endpoint and its access rule.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)

	mux.Handle("GET /plans", h.authenticated(http.HandlerFunc(h.ListPlans)))
	mux.Handle("POST /plans", h.authenticated(adminOnly(http.HandlerFunc(h.CreatePlan))))
	mux.Handle("PUT /plans/{id}", h.authenticated(adminOnly(http.HandlerFunc(h.UpdatePlan))))
	mux.Handle("DELETE /plans/{id}", h.authenticated(adminOnly(http.HandlerFunc(h.DeletePlan))))

	mux.Handle("GET /users/me", h.authenticated(http.HandlerFunc(h.Me)))

	mux.Handle("POST /transactions", h.authenticated(http.HandlerFunc(h.SubmitTransaction)))
	mux.Handle("GET /transactions", h.authenticated(adminOnly(http.HandlerFunc(h.ListTransactions))))

	mux.HandleFunc("GET /collections/popular", h.PopularCollections)
	mux.Handle("GET /collections", h.authenticated(h.subscribed(http.HandlerFunc(h.AllCollections))))
	mux.HandleFunc("GET /charts/{symbol}", h.Chart)

	if h.hub != nil {
		mux.Handle("GET /ws/prices", h.authenticated(h.subscribed(http.HandlerFunc(h.hub.HandleWebSocket))))
	}

	return h.withRequestLog(recoverer(h.logger, mux))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	body := map[string]any{"status": "healthy", "database": true}
	if h.memory != nil {
		body["live_samples"] = h.memory.CountAll()
	}
	if h.hub != nil {
		body["ws_clients"] = h.hub.ClientCount()
	}

	if !h.store.IsHealthy(ctx) {
		body["status"] = "unavailable"
		body["database"] = false
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
