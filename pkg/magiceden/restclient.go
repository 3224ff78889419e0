package magiceden

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"chartgate/pkg/candle"
)

type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func NewRESTClient(baseURL, apiKey string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// PopularCollections fetches the ranking for a window ("1h", "1d", "7d", ...).
func (c *RESTClient) PopularCollections(ctx context.Context, window string, limit int) ([]Collection, error) {
	q := url.Values{}
	q.Set("window", window)
	q.Set("limit", strconv.Itoa(limit))

	var out []Collection
	if err := c.getJSON(ctx, c.baseURL+"/popular_collections?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("popular collections: %w", err)
	}
	return out, nil
}

// FloorPrices returns the current floor of each ranked collection, stamped
// with the fetch time and ordered by symbol.
func (c *RESTClient) FloorPrices(ctx context.Context, window string, limit int) ([]FloorPrice, error) {
	collections, err := c.PopularCollections(ctx, window, limit)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	out := make([]FloorPrice, 0, len(collections))
	for _, col := range collections {
		if col.Symbol == "" {
			continue
		}
		out = append(out, FloorPrice{Symbol: col.Symbol, Price: col.FloorPrice, Time: now})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Timeseries fetches the floor price history of one collection, sorted ascending.
// Rows with an unparseable time are skipped.
func (c *RESTClient) Timeseries(ctx context.Context, symbol string) ([]candle.Sample, error) {
	endpoint := fmt.Sprintf("%s/collections/%s/timeseries", c.baseURL, url.PathEscape(symbol))

	var raw []timeseriesPoint
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("timeseries %s: %w", symbol, err)
	}

	samples := make([]candle.Sample, 0, len(raw))
	for _, p := range raw {
		ts, err := time.Parse(time.RFC3339, p.Time)
		if err != nil {
			continue
		}
		samples = append(samples, candle.Sample{Time: ts.UTC(), Price: p.FloorPrice})
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

func (c *RESTClient) getJSON(ctx context.Context, endpoint string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("magiceden error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
