// Package ethplorer is a client for the Ethplorer token API, used to resolve
// ERC-20 metadata (name, symbol, decimals) by contract address.
package ethplorer

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

const defaultBaseURL = "https://api.ethplorer.io"

// Client queries Ethplorer's getTokenInfo endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an Ethplorer client. An empty apiKey uses the public
// "freekey" tier.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if apiKey == "" {
		apiKey = "freekey"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// TokenInfo fetches metadata for a token contract. A token Ethplorer does not
// know yields domain.ErrNotFound; callers treat that as "not resolved yet".
func (c *Client) TokenInfo(ctx context.Context, address string) (domain.TokenInfo, error) {
	endpoint := fmt.Sprintf("%s/getTokenInfo/%s?apiKey=%s", c.baseURL, url.PathEscape(address), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: %s: %w", address, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: %s: status %d", address, resp.StatusCode)
	}

	// Decimals arrive as a JSON string for some tokens and a number for
	// others.
	var body struct {
		Name     string          `json:"name"`
		Symbol   string          `json:"symbol"`
		Decimals json.RawMessage `json:"decimals"`
		Error    *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: %s: decode: %w", address, err)
	}
	if body.Error != nil {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: %s: %s: %w", address, body.Error.Message, domain.ErrNotFound)
	}
	if body.Symbol == "" {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: %s: no symbol: %w", address, domain.ErrNotFound)
	}

	decimals, err := parseDecimals(body.Decimals)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("ethplorer: %s: %w", address, err)
	}

	return domain.TokenInfo{
		Name:     body.Name,
		Symbol:   body.Symbol,
		Decimals: decimals,
	}, nil
}

func parseDecimals(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing decimals")
	}

	var asNumber int
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return 0, fmt.Errorf("malformed decimals %s", string(raw))
	}
	n, err := strconv.Atoi(asString)
	if err != nil {
		return 0, fmt.Errorf("malformed decimals %q", asString)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.TokenMetadataProvider = (*Client)(nil)
