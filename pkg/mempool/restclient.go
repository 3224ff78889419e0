package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTClient talks to a mempool.space compatible esplora API.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TxStatus fetches the confirmation status of a transaction.
func (c *RESTClient) TxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	endpoint := fmt.Sprintf("%s/api/tx/%s/status", c.baseURL, url.PathEscape(txid))

	var status TxStatus
	if err := c.getJSON(ctx, endpoint, &status); err != nil {
		return nil, fmt.Errorf("tx status %s: %w", txid, err)
	}
	return &status, nil
}

// IsConfirmed reports whether the transaction has been mined.
func (c *RESTClient) IsConfirmed(ctx context.Context, txid string) (bool, error) {
	status, err := c.TxStatus(ctx, txid)
	if err != nil {
		return false, err
	}
	return status.Confirmed, nil
}

// PendingTxids returns the ids of every transaction currently in the mempool.
func (c *RESTClient) PendingTxids(ctx context.Context) (map[string]struct{}, error) {
	var txids []string
	if err := c.getJSON(ctx, c.baseURL+"/api/mempool/txids", &txids); err != nil {
		return nil, fmt.Errorf("mempool txids: %w", err)
	}

	set := make(map[string]struct{}, len(txids))
	for _, id := range txids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (c *RESTClient) getJSON(ctx context.Context, endpoint string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mempool error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
