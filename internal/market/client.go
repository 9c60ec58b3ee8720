package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public CoinGecko v3 API.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	DefaultVSCurrency = "usd"
	DefaultPerPage    = 10

	// DefaultRequestsPerMinute stays under the public API's free tier quota.
	DefaultRequestsPerMinute = 30

	maxResponseBytes = 2 << 20
)

// ClientConfig configures a markets API client.
type ClientConfig struct {
	BaseURL           string
	VSCurrency        string
	PerPage           int
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client fetches market listings. Calls are throttled client-side; a call
// that would exceed the rate waits for a token or for ctx to end.
type Client struct {
	baseURL    string
	vsCurrency string
	perPage    int
	http       *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.VSCurrency == "" {
		cfg.VSCurrency = DefaultVSCurrency
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	every := time.Minute / time.Duration(cfg.RequestsPerMinute)
	return &Client{
		baseURL:    cfg.BaseURL,
		vsCurrency: cfg.VSCurrency,
		perPage:    cfg.PerPage,
		http:       cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Every(every), 1),
	}
}

// Markets returns the top coins ordered by market cap, with 7-day sparklines.
func (c *Client) Markets(ctx context.Context) ([]Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("markets: rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", "1")
	q.Set("sparkline", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("markets: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("markets: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("markets: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var quotes []Quote
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, fmt.Errorf("markets: decode: %w", err)
	}
	return quotes, nil
}

// StatusError is returned when the API answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if len(e.Body) > 200 {
		return fmt.Sprintf("markets: status %d: %s...", e.Code, e.Body[:200])
	}
	return fmt.Sprintf("markets: status %d: %s", e.Code, e.Body)
}
