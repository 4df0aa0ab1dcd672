// Package dune submits parameterized queries to the Dune API and polls
// their executions until a terminal state.
package dune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/raw"
)

const (
	DefaultBaseURL     = "https://api.dune.com/api/v1"
	DefaultPerformance = "medium"
	apiKeyHeader       = "X-Dune-API-Key"
)

// Config carries what the client needs from the process configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Performance string
	Timeout     time.Duration
}

// Client talks to the Dune execution API.
type Client struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	performance string
	logger      *slog.Logger

	// wait blocks between poll attempts.
	wait func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Performance == "" {
		cfg.Performance = DefaultPerformance
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		performance: cfg.Performance,
		logger:      logger,
		wait:        sleep,
	}
}

type executeRequest struct {
	QueryParameters map[string]any `json:"query_parameters"`
	Performance     string         `json:"performance"`
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
}

// Submit starts an execution of queryID with params and returns the job
// handle. A response without an execution_id is a *SubmissionError.
func (c *Client) Submit(ctx context.Context, queryID int, params map[string]any) (*QueryJob, error) {
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(executeRequest{QueryParameters: params, Performance: c.performance})
	if err != nil {
		return nil, &SubmissionError{QueryID: queryID, Err: fmt.Errorf("encode request: %w", err)}
	}

	url := c.baseURL + "/query/" + strconv.Itoa(queryID) + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &SubmissionError{QueryID: queryID, Err: err}
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &SubmissionError{QueryID: queryID, Err: fmt.Errorf("dune API: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SubmissionError{QueryID: queryID, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var out executeResponse
	if err := json.Unmarshal(body, &out); err != nil || out.ExecutionID == "" {
		return nil, &SubmissionError{QueryID: queryID, StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("dune query submitted", "query_id", queryID, "execution_id", out.ExecutionID)
	return &QueryJob{
		QueryID:     queryID,
		Parameters:  params,
		ExecutionID: out.ExecutionID,
		SubmittedAt: time.Now(),
	}, nil
}

type resultsResponse struct {
	State  string `json:"state"`
	Result *struct {
		Rows []raw.Row `json:"rows"`
	} `json:"result"`
}

// fetchStatus performs one status request and returns the decoded
// response together with the raw body.
func (c *Client) fetchStatus(ctx context.Context, executionID string) (*resultsResponse, []byte, error) {
	url := c.baseURL + "/execution/" + executionID + "/results"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("dune API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read dune results: %w", err)
	}

	var out resultsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, body, fmt.Errorf("decode dune results (status %d): %w", resp.StatusCode, err)
	}
	return &out, body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
