package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// DefaultBaseURL is the public Hyperliquid info endpoint.
const DefaultBaseURL = "https://api.hyperliquid.xyz"

const maxAttempts = 3

// Client queries the Hyperliquid info API for per-address fills and open
// orders. Transient transport failures are retried with exponential backoff;
// HTTP 422 (unknown or empty address) is treated as an empty result.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// backoffBase is the unit for the 2^attempt sleep between retries.
	backoffBase time.Duration
}

// NewClient creates a Hyperliquid info API client. An empty baseURL selects
// the public endpoint.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:      logger.With("component", "hyperliquid"),
		backoffBase: time.Second,
	}
}

// infoRequest is the request envelope for the info endpoint.
type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// UserFills fetches all executed trades reported for the address. Records
// that fail to decode are skipped individually.
func (c *Client) UserFills(ctx context.Context, addr domain.Address) ([]domain.Fill, error) {
	body, err := c.doInfo(ctx, "userFills", addr)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: fetch fills: %w", err)
	}
	if body == nil {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode fills: %w", err)
	}

	fills := make([]domain.Fill, 0, len(raw))
	for _, r := range raw {
		var af apiFill
		if err := json.Unmarshal(r, &af); err != nil {
			c.logger.Warn("skipping malformed fill record",
				"address", addr.Short(), "error", err, "payload", string(r))
			continue
		}
		f, err := af.toDomain()
		if err != nil {
			c.logger.Warn("skipping invalid fill record",
				"address", addr.Short(), "error", err, "payload", string(r))
			continue
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// OpenOrders fetches the address's currently resting limit orders. Records
// that fail to decode are skipped individually.
func (c *Client) OpenOrders(ctx context.Context, addr domain.Address) ([]domain.OpenOrder, error) {
	body, err := c.doInfo(ctx, "openOrders", addr)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: fetch open orders: %w", err)
	}
	if body == nil {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode open orders: %w", err)
	}

	orders := make([]domain.OpenOrder, 0, len(raw))
	for _, r := range raw {
		var ao apiOpenOrder
		if err := json.Unmarshal(r, &ao); err != nil {
			c.logger.Warn("skipping malformed open order record",
				"address", addr.Short(), "error", err, "payload", string(r))
			continue
		}
		o, err := ao.toDomain()
		if err != nil {
			c.logger.Warn("skipping invalid open order record",
				"address", addr.Short(), "error", err, "payload", string(r))
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// doInfo POSTs an info request and returns the response body. A nil body
// with nil error means the upstream reported no data for the address
// (HTTP 422). Transient failures are retried up to maxAttempts times with
// 2^attempt backoff.
func (c *Client) doInfo(ctx context.Context, reqType string, addr domain.Address) ([]byte, error) {
	jsonBody, err := json.Marshal(infoRequest{Type: reqType, User: addr.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			sleep := c.backoffBase * (1 << (attempt - 1))
			c.logger.Debug("retrying info request",
				"type", reqType, "address", addr.Short(), "attempt", attempt+1, "sleep", sleep)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, retryable, err := c.attempt(ctx, jsonBody)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, jsonBody []byte) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// Unknown or inactive addresses come back as 422. That is the steady
	// state for freshly added whales, so it counts as an empty success.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, false, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return data, false, nil
}
