package domain

import (
	"context"
	"time"
)

// RateProvider fetches historical conversion rates from an external price
// service. Implementations return ErrRateUnavailable both on provider failure
// and on "no data"; callers treat either as retry-later, never as a hard
// failure.
type RateProvider interface {
	HistoricalPrice(ctx context.Context, symbol string, at time.Time) (float64, error)
}

// TokenInfo is the metadata returned by a token metadata provider.
type TokenInfo struct {
	Name     string
	Symbol   string
	Decimals int
}

// TokenMetadataProvider resolves token metadata by contract address. A token
// the provider cannot resolve yields ErrNotFound.
type TokenMetadataProvider interface {
	TokenInfo(ctx context.Context, address string) (TokenInfo, error)
}
