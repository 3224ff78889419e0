package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"chartgate/internal/memorystore"
	"chartgate/pkg/candle"
	"chartgate/pkg/magiceden"
	"chartgate/pkg/storage/postgres"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeMarket struct {
	window string
	limit  int
	series []candle.Sample
	err    error
}

func (f *fakeMarket) PopularCollections(_ context.Context, window string, limit int) ([]magiceden.Collection, error) {
	f.window, f.limit = window, limit
	if f.err != nil {
		return nil, f.err
	}
	return []magiceden.Collection{{Symbol: "nodemonkes", Name: "NodeMonkes", FloorPrice: decimal.NewFromInt(3500000)}}, nil
}

func (f *fakeMarket) Timeseries(context.Context, string) ([]candle.Sample, error) {
	return f.series, f.err
}

type fixture struct {
	h       *Handler
	srv     http.Handler
	store   *postgres.PostgresClient
	market  *fakeMarket
	admin   *postgres.UserRecord
	member  *postgres.UserRecord
	visitor *postgres.UserRecord
	plan    *postgres.PlanRecord
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store, err := postgres.NewSQLiteClient(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("auto migration failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	f := &fixture{store: store, market: &fakeMarket{}}

	exp := testNow.AddDate(0, 0, 10)
	f.admin = &postgres.UserRecord{Email: "admin@example.com", Role: postgres.RoleAdmin}
	f.member = &postgres.UserRecord{Email: "member@example.com", SubscriptionActive: true, Cadence: postgres.CadenceMonthly, ExpirationDate: &exp}
	f.visitor = &postgres.UserRecord{Email: "visitor@example.com"}
	for _, u := range []*postgres.UserRecord{f.admin, f.member, f.visitor} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	f.plan = &postgres.PlanRecord{Name: "pro", Description: "all collections", MonthlyPrice: decimal.NewFromInt(50000), YearlyPrice: decimal.NewFromInt(500000)}
	if err := store.CreatePlan(ctx, f.plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	f.h = NewHandler(store, f.market, memorystore.NewPriceStore(16), nil, zap.NewNop(), opts)
	f.h.now = func() time.Time { return testNow }
	f.srv = f.h.Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, user *postgres.UserRecord, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if user != nil {
		req.Header.Set(UserHeader, strconv.FormatUint(uint64(user.ID), 10))
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Data
}

// go test -v --run ^TestHealth$
func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

// go test -v --run ^TestAuthentication$
func TestAuthentication(t *testing.T) {
	f := newFixture(t, Options{})

	if rec := f.do(t, http.MethodGet, "/plans", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/plans", &postgres.UserRecord{ID: 999}, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/plans", f.visitor, nil); rec.Code != http.StatusOK {
		t.Errorf("known user: got %d", rec.Code)
	}
}

// go test -v --run ^TestSubmitTransaction$
func TestSubmitTransaction(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/transactions", f.visitor, map[string]any{
		"txHash": "de665cb8e417f22835ead47d6a0ce4142c66f4e5e8e140b2d58f84ad42d8dff3", "planId": f.plan.ID, "purchaseType": "monthly",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	tx := decodeData[postgres.TransactionRecord](t, rec)
	if tx.Status != postgres.StatusPending || tx.UserID != f.visitor.ID {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	if !tx.PurchaseDate.Equal(testNow) || !tx.ExpirationDate.Equal(testNow.AddDate(0, 1, 0)) {
		t.Errorf("dates: purchase=%s expiration=%s", tx.PurchaseDate, tx.ExpirationDate)
	}

	dup := f.do(t, http.MethodPost, "/transactions", f.visitor, map[string]any{
		"txHash": "de665cb8e417f22835ead47d6a0ce4142c66f4e5e8e140b2d58f84ad42d8dff3", "planId": f.plan.ID, "purchaseType": "yearly",
	})
	if dup.Code != http.StatusConflict {
		t.Errorf("duplicate: got %d", dup.Code)
	}

	missing := f.do(t, http.MethodPost, "/transactions", f.visitor, map[string]any{
		"txHash": "abc", "planId": 404, "purchaseType": "yearly",
	})
	if missing.Code != http.StatusNotFound {
		t.Errorf("unknown plan: got %d", missing.Code)
	}
}

// go test -v --run ^TestSubmitTransactionValidation$
func TestSubmitTransactionValidation(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name string
		body any
		want []string
	}{
		{"empty body", "", []string{"request body is empty"}},
		{"bad json", "{", nil},
		{"unknown field", `{"txHash":"a","planId":1,"purchaseType":"monthly","price":1}`, nil},
		{"all missing", map[string]any{}, []string{"txHash is required", "planId is required", "purchaseType must be one of [monthly, yearly]"}},
		{"weekly", map[string]any{"txHash": "a", "planId": 1, "purchaseType": "weekly"}, []string{"purchaseType must be one of [monthly, yearly]"}},
	}

	for _, tt := range tests {
		rec := f.do(t, http.MethodPost, "/transactions", f.visitor, tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", tt.name, rec.Code)
			continue
		}
		var body errorBody
		json.NewDecoder(rec.Body).Decode(&body)
		if tt.want != nil && strings.Join(body.Details, "|") != strings.Join(tt.want, "|") {
			t.Errorf("%s: details %v, want %v", tt.name, body.Details, tt.want)
		}
	}
}

// go test -v --run ^TestPlansAdmin$
func TestPlansAdmin(t *testing.T) {
	f := newFixture(t, Options{})
	body := map[string]any{"name": "basic", "description": "top 12", "monthlyPrice": 10000, "yearlyPrice": "100000"}

	if rec := f.do(t, http.MethodPost, "/plans", f.member, body); rec.Code != http.StatusForbidden {
		t.Errorf("member create: got %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/plans", f.admin, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create: %d %s", rec.Code, rec.Body)
	}
	plan := decodeData[postgres.PlanRecord](t, rec)

	if rec := f.do(t, http.MethodPost, "/plans", f.admin, map[string]any{"name": "x", "description": "y", "monthlyPrice": -1}); rec.Code != http.StatusBadRequest {
		t.Errorf("negative price: got %d", rec.Code)
	}

	path := "/plans/" + strconv.FormatUint(uint64(plan.ID), 10)
	rec = f.do(t, http.MethodPut, path, f.admin, map[string]any{"yearlyPrice": 90000})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	if updated := decodeData[postgres.PlanRecord](t, rec); !updated.YearlyPrice.Equal(decimal.NewFromInt(90000)) || updated.Name != "basic" {
		t.Errorf("unexpected update: %+v", updated)
	}

	if rec := f.do(t, http.MethodDelete, path, f.admin, nil); rec.Code != http.StatusOK {
		t.Errorf("delete: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, path, f.admin, nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete again: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/transactions", f.member, nil); rec.Code != http.StatusForbidden {
		t.Errorf("member list transactions: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/transactions?limit=5", f.admin, nil); rec.Code != http.StatusOK {
		t.Errorf("admin list transactions: got %d", rec.Code)
	}
}

// go test -v --run ^TestCollectionsGate$
func TestCollectionsGate(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/collections/popular", nil, nil)
	if rec.Code != http.StatusOK || f.market.limit != 12 || f.market.window != "1d" {
		t.Errorf("popular: code=%d window=%s limit=%d", rec.Code, f.market.window, f.market.limit)
	}

	if rec := f.do(t, http.MethodGet, "/collections", f.visitor, nil); rec.Code != http.StatusForbidden {
		t.Errorf("visitor: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/collections?window=7d", f.member, nil); rec.Code != http.StatusOK || f.market.limit != 120 || f.market.window != "7d" {
		t.Errorf("member: code=%d window=%s limit=%d", rec.Code, f.market.window, f.market.limit)
	}
	if rec := f.do(t, http.MethodGet, "/collections", f.admin, nil); rec.Code != http.StatusOK {
		t.Errorf("admin: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/collections?limit=0", f.admin, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", rec.Code)
	}

	f.market.err = errors.New("429 too many requests")
	if rec := f.do(t, http.MethodGet, "/collections/popular", nil, nil); rec.Code != http.StatusBadGateway {
		t.Errorf("upstream failure: got %d", rec.Code)
	}
}

// go test -v --run ^TestMe$
func TestMe(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/users/me", f.member, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	me := decodeData[map[string]any](t, rec)
	if me["hasAccess"] != true || me["daysRemaining"] != float64(10) || me["email"] != "member@example.com" {
		t.Errorf("unexpected body: %v", me)
	}
}

func boundaryFixture() []candle.Sample {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []candle.Sample{
		{Time: base, Price: decimal.NewFromInt(100)},
		{Time: base.Add(30 * time.Minute), Price: decimal.NewFromInt(110)},
		{Time: base.Add(time.Hour), Price: decimal.NewFromInt(90)},
	}
}

// go test -v --run ^TestChartFromMarketplace$
func TestChartFromMarketplace(t *testing.T) {
	f := newFixture(t, Options{ChartSource: "marketplace"})
	f.market.series = boundaryFixture()

	rec := f.do(t, http.MethodGet, "/charts/nodemonkes", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	bars := decodeData[[]tradingViewBar](t, rec)
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %+v", bars)
	}

	first := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC).UnixMilli()
	want := tradingViewBar{Time: first, Open: 0.000001, High: 0.0000011, Low: 0.0000009, Close: 0.0000009}
	if bars[0] != want {
		t.Errorf("first bar: got %+v, want %+v", bars[0], want)
	}
	if bars[1].Time != first+time.Hour.Milliseconds() || bars[1].Volume != 0 {
		t.Errorf("second bar: %+v", bars[1])
	}
}

// go test -v --run ^TestChartFromStore$
func TestChartFromStore(t *testing.T) {
	f := newFixture(t, Options{ChartSource: "store", ChartLookback: 24 * time.Hour})
	ctx := context.Background()

	records := []postgres.PriceSampleRecord{
		{Symbol: "bitmap", Price: decimal.NewFromInt(1000), Time: testNow.Add(-48 * time.Hour)},
		{Symbol: "bitmap", Price: decimal.NewFromInt(2000), Time: testNow.Add(-2 * time.Hour)},
		{Symbol: "bitmap", Price: decimal.NewFromInt(3000), Time: testNow.Add(-105 * time.Minute)},
	}
	if err := f.store.InsertPriceSamples(ctx, records); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/charts/bitmap", nil, nil)
	bars := decodeData[[]tradingViewBar](t, rec)
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar inside the lookback, got %+v", bars)
	}
	if bars[0].Open != 0.00002 || bars[0].Close != 0.00003 {
		t.Errorf("unexpected bar: %+v", bars[0])
	}

	rec = f.do(t, http.MethodGet, "/charts/unknown", nil, nil)
	if bars := decodeData[[]tradingViewBar](t, rec); len(bars) != 0 {
		t.Errorf("unknown symbol should chart nothing, got %+v", bars)
	}
}

// go test -v --run ^TestPriceWebSocket$
func TestPriceWebSocket(t *testing.T) {
	f := newFixture(t, Options{})
	memory := memorystore.NewPriceStore(4)
	memory.Add(memorystore.PriceMemory{Symbol: "bitmap", Sample: candle.Sample{Time: testNow, Price: decimal.NewFromInt(12000)}})

	hub := NewHub(memory, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	f.h = NewHandler(f.store, f.market, memory, hub, zap.NewNop(), Options{})
	f.h.now = func() time.Time { return testNow }
	srv := httptest.NewServer(f.h.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/prices"

	header := http.Header{}
	header.Set(UserHeader, strconv.FormatUint(uint64(f.visitor.ID), 10))
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("visitor should be refused, err=%v", err)
	}

	header.Set(UserHeader, strconv.FormatUint(uint64(f.member.ID), 10))
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev priceEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if ev.Type != "snapshot" || len(ev.Prices) != 1 || ev.Prices[0].Symbol != "bitmap" {
		t.Fatalf("unexpected snapshot: %+v", ev)
	}

	hub.Publish([]memorystore.PriceMemory{{Symbol: "nodemonkes", Sample: candle.Sample{Time: testNow, Price: decimal.NewFromInt(3500000)}}})
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if ev.Type != "capture" || ev.Prices[0].Symbol != "nodemonkes" {
		t.Errorf("unexpected capture: %+v", ev)
	}
}
