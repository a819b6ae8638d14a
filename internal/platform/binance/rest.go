package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// Client is the REST client for Binance spot market data.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client. baseURL is the API root, e.g.
// "https://api.binance.com".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetPrice returns the latest traded price for a pair.
func (c *Client) GetPrice(ctx context.Context, pair string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", Symbol(pair))

	body, err := c.doGet(ctx, "/api/v3/ticker/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("binance: get price %s: %w", pair, err)
	}

	var tp TickerPrice
	if err := json.Unmarshal(body, &tp); err != nil {
		return 0, fmt.Errorf("binance: decode price %s: %w", pair, err)
	}
	if tp.Price == "" {
		return 0, fmt.Errorf("binance: price %s: %w", pair, domain.ErrPriceUnavailable)
	}
	price, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("binance: price %s %q: %w", pair, tp.Price, domain.ErrPriceUnavailable)
	}
	return price, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx responses onto domain errors, keeping the
// Binance error body when one is present.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr *APIError
	var parsed APIError
	if json.Unmarshal(body, &parsed) == nil && parsed.Msg != "" {
		apiErr = &parsed
	}

	var kind error
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		kind = domain.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = domain.ErrUnauthorized
	case http.StatusNotFound:
		kind = domain.ErrNotFound
	}

	switch {
	case kind != nil && apiErr != nil:
		return fmt.Errorf("%w: %w", kind, apiErr)
	case kind != nil:
		return fmt.Errorf("%w: %s", kind, string(body))
	case apiErr != nil:
		return apiErr
	default:
		return errors.New("HTTP " + strconv.Itoa(statusCode) + ": " + string(body))
	}
}
