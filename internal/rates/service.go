// Package rates provides historical USD conversion rates through a
// time-bucketed cache over an external price provider.
package rates

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// recentWindow separates minute-granularity buckets (recent timestamps) from
// hour-granularity buckets (older ones).
const recentWindow = 7 * 24 * time.Hour

// limiterKey identifies the price provider in the shared rate limiter, so
// every replica's cache misses draw from one request budget.
const limiterKey = "provider:cryptocompare"

// slot is the cached rate for one symbol. The cache keeps a single slot per
// symbol: a request for a newer bucket overwrites the slot, so interleaved
// old/new requests for the same symbol will not share a hit.
type slot struct {
	bucket time.Time
	rate   float64
}

// Service caches conversion rates per (symbol, rounded-time) bucket. Cache
// misses are paced through the limiter before reaching the provider.
type Service struct {
	provider domain.RateProvider
	limiter  domain.RateLimiter
	perMin   int
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	slots map[string]slot
}

// NewService creates a rate Service over the given provider. limiter may be
// nil to disable pacing; requestsPerMinute is the provider's request budget.
func NewService(provider domain.RateProvider, limiter domain.RateLimiter, requestsPerMinute int, logger *slog.Logger) *Service {
	return &Service{
		provider: provider,
		limiter:  limiter,
		perMin:   requestsPerMinute,
		logger:   logger.With(slog.String("component", "rates")),
		now:      time.Now,
		slots:    make(map[string]slot),
	}
}

// GetRate returns the USD rate for symbol at the given time. Timestamps less
// than seven days old are bucketed to the minute, older ones to the hour. A
// cache miss waits on the shared provider limiter before fetching. On
// provider failure or no-data nothing is cached and the error wraps
// domain.ErrRateUnavailable; callers treat that as retry-later, never as a
// hard failure.
func (s *Service) GetRate(ctx context.Context, symbol string, at time.Time) (float64, error) {
	symbol = NormalizeSymbol(symbol)
	bucket := s.bucket(at)

	s.mu.Lock()
	cached, ok := s.slots[symbol]
	s.mu.Unlock()
	if ok && cached.bucket.Equal(bucket) {
		return cached.rate, nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, limiterKey, s.perMin, time.Minute); err != nil {
			return 0, fmt.Errorf("rates: limiter: %w", err)
		}
	}

	rate, err := s.provider.HistoricalPrice(ctx, symbol, bucket)
	if err != nil {
		return 0, fmt.Errorf("rates: %s at %s: %w", symbol, bucket.Format(time.RFC3339), err)
	}

	s.mu.Lock()
	s.slots[symbol] = slot{bucket: bucket, rate: rate}
	s.mu.Unlock()

	s.logger.Debug("conversion rate fetched",
		slog.String("symbol", symbol),
		slog.Time("bucket", bucket),
		slog.Float64("rate", rate),
	)
	return rate, nil
}

// bucket rounds a timestamp down to the cache granularity for its age.
func (s *Service) bucket(at time.Time) time.Time {
	if s.now().Sub(at) < recentWindow {
		return at.Truncate(time.Minute)
	}
	return at.Truncate(time.Hour)
}
