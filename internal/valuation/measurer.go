// Package valuation computes USD values and per-asset prices for fills:
// direct measurement when one side of the trade is base tokens, back-derived
// prices from a known fill value, and USD conversion of protocol and relayer
// fees.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/tokens"
)

// ErrNotMeasurable marks a fill with no actor side composed entirely of base
// tokens. Such fills are skipped, not failed.
var ErrNotMeasurable = errors.New("fill is not measurable")

// RateGetter is the slice of the rate service the valuation stages need.
type RateGetter interface {
	GetRate(ctx context.Context, symbol string, at time.Time) (float64, error)
}

// Measurer values fills whose maker or taker side consists only of base
// tokens.
type Measurer struct {
	rates  RateGetter
	cache  *tokens.Cache
	logger *slog.Logger
}

// NewMeasurer creates a Measurer over the given rate service and token cache.
func NewMeasurer(rates RateGetter, cache *tokens.Cache, logger *slog.Logger) *Measurer {
	return &Measurer{
		rates:  rates,
		cache:  cache,
		logger: logger.With(slog.String("component", "measurer")),
	}
}

// MeasurableActor returns the actor whose assets establish the fill's value:
// the first of [maker, taker] with non-empty assets that are all base tokens.
// Maker wins when both sides qualify.
func MeasurableActor(fill *domain.Fill) (domain.Actor, bool) {
	for _, actor := range []domain.Actor{domain.ActorMaker, domain.ActorTaker} {
		assets := fill.AssetsByActor(actor)
		if len(assets) == 0 {
			continue
		}
		allBase := true
		for _, a := range assets {
			if !IsBaseToken(a.TokenAddress) {
				allBase = false
				break
			}
		}
		if allBase {
			return actor, true
		}
	}
	return "", false
}

// Measure computes the fill's total USD value over its measurable side.
//
// Errors follow the pipeline taxonomy: ErrNotMeasurable when neither side
// qualifies (skip), domain.ErrNotReady when a token on the measurable side
// has not resolved in the cache (defer), and a domain.ErrRateUnavailable
// wrapped error when any required rate cannot be fetched (defer, so no
// partial measurement is ever persisted).
func (m *Measurer) Measure(ctx context.Context, fill *domain.Fill) (domain.Measurement, error) {
	actor, ok := MeasurableActor(fill)
	if !ok {
		return domain.Measurement{}, ErrNotMeasurable
	}

	assets := fill.AssetsByActor(actor)

	// All tokens must be resolved before any rate is fetched, so a deferral
	// never does half the provider calls.
	for _, a := range assets {
		if _, ok := m.cache.Get(a.TokenAddress); !ok {
			return domain.Measurement{}, fmt.Errorf("token %s: %w", a.TokenAddress, domain.ErrNotReady)
		}
	}

	measurement := domain.Measurement{FillID: fill.ID}
	for _, a := range assets {
		token, _ := m.cache.Get(a.TokenAddress)
		symbol, _ := BaseTokenSymbol(a.TokenAddress)

		rate, err := m.rates.GetRate(ctx, symbol, fill.Date)
		if err != nil {
			return domain.Measurement{}, fmt.Errorf("measure fill %s: %w", fill.ID, err)
		}

		amount, err := FormatAmount(a.RawAmount, token.Decimals)
		if err != nil {
			return domain.Measurement{}, &domain.PreconditionError{FillID: fill.ID, Reason: err.Error()}
		}

		value := amount * rate
		measurement.TotalUSD += value
		measurement.AssetPrices = append(measurement.AssetPrices, domain.AssetPrice{
			Index:    a.Index,
			PriceUSD: rate,
			ValueUSD: value,
		})

		if fill.RelayerID != nil {
			measurement.LastTrades = append(measurement.LastTrades, domain.LastTrade{
				RelayerID:    *fill.RelayerID,
				TokenAddress: a.TokenAddress,
				PriceUSD:     rate,
				Date:         fill.Date,
			})
		}
	}

	m.logger.Debug("fill measured",
		slog.String("fill_id", fill.ID),
		slog.String("actor", string(actor)),
		slog.Float64("total_usd", measurement.TotalUSD),
	)
	return measurement, nil
}
