package magiceden

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/popular_collections", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("window") != "1d" || r.URL.Query().Get("limit") != "3" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[
			{"collectionSymbol":"runestone","name":"Runestone","fp":250000,"vol":"12.5"},
			{"collectionSymbol":"nodemonkes","name":"NodeMonkes","fp":"3100000"},
			{"collectionSymbol":"","name":"broken","fp":1}
		]`))
	})
	mux.HandleFunc("/collections/nodemonkes/timeseries", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"time":"2024-03-01T01:30:00Z","floorprice":120},
			{"time":"not-a-time","floorprice":1},
			{"time":"2024-03-01T00:15:00Z","floorprice":100}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// go test -v --run ^TestFloorPrices$
func TestFloorPrices(t *testing.T) {
	srv := newTestServer(t)
	client := NewRESTClient(srv.URL, "key", 5*time.Second)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	prices, err := client.FloorPrices(context.Background(), "1d", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(prices))
	}
	if prices[0].Symbol != "nodemonkes" || !prices[0].Price.Equal(decimal.NewFromInt(3100000)) {
		t.Errorf("unexpected first price: %+v", prices[0])
	}
	if !prices[1].Time.Equal(fixed) {
		t.Errorf("expected capture time %s, got %s", fixed, prices[1].Time)
	}
}

// go test -v --run ^TestTimeseries$
func TestTimeseries(t *testing.T) {
	srv := newTestServer(t)
	client := NewRESTClient(srv.URL, "", 5*time.Second)

	samples, err := client.Timeseries(context.Background(), "nodemonkes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if !samples[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("samples not sorted ascending: %+v", samples)
	}
}

// go test -v --run ^TestPopularCollectionsUpstreamError$
func TestPopularCollectionsUpstreamError(t *testing.T) {
	srv := newTestServer(t)
	client := NewRESTClient(srv.URL, "wrong", 5*time.Second)

	if _, err := client.PopularCollections(context.Background(), "1d", 3); err == nil {
		t.Fatal("expected error on 401")
	}
}
