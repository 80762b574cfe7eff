// Package matcher is the HTTP client for the off-chain matching engine's
// order intake and trade feed.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// Client talks to the matcher over HTTP. The matcher exposes two routes the
// bridge uses: POST /order (submit) and GET /trades (full trade snapshot).
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a matcher client. endpoint is the matcher base URL, e.g.
// "http://172.191.42.99:8080". timeout bounds every request.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// OrderRequest carries one order to submit. Price is only consulted for
// limit orders; market orders omit the price parameter entirely.
type OrderRequest struct {
	User     string
	Type     domain.OrderKind
	Side     domain.OrderSide
	Quantity float64
	Price    float64
}

// orderResponse is the matcher's reply to POST /order.
type orderResponse struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

// SubmitOrder posts one order to the matcher and returns the assigned order
// id. The matcher takes its parameters as query values, not a body.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	q := url.Values{}
	q.Set("user", req.User)
	q.Set("type", req.Type.String())
	q.Set("side", string(req.Side))
	q.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.Type == domain.OrderKindLimit {
		q.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	}

	u := c.endpoint + "/order?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", fmt.Errorf("matcher: build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("matcher: submit order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("matcher: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("matcher: submit order: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed orderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("matcher: decode order response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("matcher: order rejected: %s", parsed.Error)
	}
	if parsed.OrderID == "" {
		return "", fmt.Errorf("matcher: order response missing order_id")
	}
	return parsed.OrderID, nil
}

// ListTrades fetches the matcher's current trade snapshot. The feed is
// cumulative; callers are responsible for filtering out trades they have
// already settled.
func (c *Client) ListTrades(ctx context.Context) ([]domain.Trade, error) {
	u := c.endpoint + "/trades"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("matcher: build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("matcher: list trades: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("matcher: list trades: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var trades []domain.Trade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return nil, fmt.Errorf("matcher: decode trades: %w", err)
	}
	return trades, nil
}
