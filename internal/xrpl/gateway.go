// Package xrpl queries issuer obligations from an XRP Ledger JSON-RPC node.
package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/raw"
)

const (
	// TBILL issuer and its hot wallet; the hot wallet balance is internal
	// float and is excluded from obligations.
	TBillIssuer    = "rJNE2NNz83GJYtWVLwMvchDWEon3huWnFn"
	TBillHotWallet = "rB56JZWRKvpWNeyqM3QYfZwW4fS9YEyPWM"
	TBillCurrency  = "TBL"
)

// Client calls gateway_balances on a rippled node.
type Client struct {
	client *http.Client
	url    string
}

func NewClient(rpcURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client: &http.Client{Timeout: timeout},
		url:    rpcURL,
	}
}

type rpcRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      int          `json:"id"`
	Method  string       `json:"method"`
	Params  []rpcBalance `json:"params"`
}

type rpcBalance struct {
	Account     string   `json:"account"`
	Strict      bool     `json:"strict"`
	HotWallet   []string `json:"hotwallet"`
	LedgerIndex string   `json:"ledger_index"`
}

type rpcResponse struct {
	Result struct {
		Status       string  `json:"status"`
		Error        string  `json:"error"`
		ErrorMessage string  `json:"error_message"`
		Obligations  raw.Row `json:"obligations"`
	} `json:"result"`
}

// Obligations returns the issuer's outstanding balance for currency on the
// last validated ledger, excluding hotWallets. A currency with no
// obligations yields 0.
func (c *Client) Obligations(ctx context.Context, issuer, currency string, hotWallets ...string) (float64, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "gateway_balances",
		Params: []rpcBalance{{
			Account:     issuer,
			Strict:      true,
			HotWallet:   hotWallets,
			LedgerIndex: "validated",
		}},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("xrpl rpc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("xrpl rpc status: %d: %s", resp.StatusCode, b)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode gateway_balances: %w", err)
	}
	if out.Result.Status == "error" || out.Result.Error != "" {
		return 0, fmt.Errorf("gateway_balances: %s: %s", out.Result.Error, out.Result.ErrorMessage)
	}
	return out.Result.Obligations.Float(currency), nil
}

// TBillTVL is the TBILL value locked on XRPL.
func (c *Client) TBillTVL(ctx context.Context) (float64, error) {
	return c.Obligations(ctx, TBillIssuer, TBillCurrency, TBillHotWallet)
}
