// Package cryptocompare is a client for the CryptoCompare historical price
// API, the external provider behind the conversion rate service.
package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

const defaultBaseURL = "https://min-api.cryptocompare.com"

// Client queries CryptoCompare's pricehistorical endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a CryptoCompare client. baseURL may be empty to use the
// public API host.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// HistoricalPrice returns the USD price of symbol at the given time. Provider
// failures and no-data responses both yield domain.ErrRateUnavailable so
// callers defer and retry on a later cycle.
func (c *Client) HistoricalPrice(ctx context.Context, symbol string, at time.Time) (float64, error) {
	q := url.Values{}
	q.Set("fsym", symbol)
	q.Set("tsyms", "USD")
	q.Set("ts", strconv.FormatInt(at.Unix(), 10))

	endpoint := c.baseURL + "/data/pricehistorical?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("cryptocompare: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cryptocompare: %s: %v: %w", symbol, err, domain.ErrRateUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cryptocompare: %s: status %d: %w", symbol, resp.StatusCode, domain.ErrRateUnavailable)
	}

	// Success looks like {"ETH":{"USD":300.5}}; errors come back as
	// {"Response":"Error","Message":...} with status 200.
	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("cryptocompare: %s: decode: %v: %w", symbol, err, domain.ErrRateUnavailable)
	}

	raw, ok := body[symbol]
	if !ok {
		return 0, fmt.Errorf("cryptocompare: %s: no data: %w", symbol, domain.ErrRateUnavailable)
	}

	var quote struct {
		USD float64 `json:"USD"`
	}
	if err := json.Unmarshal(raw, &quote); err != nil {
		return 0, fmt.Errorf("cryptocompare: %s: decode quote: %v: %w", symbol, err, domain.ErrRateUnavailable)
	}
	if quote.USD == 0 {
		return 0, fmt.Errorf("cryptocompare: %s: zero rate: %w", symbol, domain.ErrRateUnavailable)
	}

	return quote.USD, nil
}

// Compile-time interface check.
var _ domain.RateProvider = (*Client)(nil)
