// Package reserve fetches the live USDO reserve composition snapshot.
package reserve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/raw"
)

const DefaultURL = "https://prod-gw.openeden.com/sys/reserve-composition-live"

// Snapshot is the reserve composition document as served, undecoded below
// the top level.
type Snapshot struct {
	raw.Row
	Chains []raw.Row
}

type Client struct {
	client  *http.Client
	baseURL string
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: url,
	}
}

// FetchSnapshot returns the current reserve composition. Any non-2xx
// response is an error.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reserve API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("reserve API status: %d", resp.StatusCode)
	}

	var doc raw.Row
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode reserve composition: %w", err)
	}
	chains, err := doc.Rows("chainReserveInfo")
	if err != nil {
		return nil, fmt.Errorf("decode chainReserveInfo: %w", err)
	}
	return &Snapshot{Row: doc, Chains: chains}, nil
}
