package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/rates"
	"github.com/alanyoungcy/fillscope/internal/tokens"
)

// FeeConverter converts ETH-denominated protocol fees and token-denominated
// relayer fees into USD.
type FeeConverter struct {
	rates  RateGetter
	cache  *tokens.Cache
	fills  domain.FillStore
	logger *slog.Logger
}

// NewFeeConverter creates a FeeConverter.
func NewFeeConverter(r RateGetter, cache *tokens.Cache, fills domain.FillStore, logger *slog.Logger) *FeeConverter {
	return &FeeConverter{
		rates:  r,
		cache:  cache,
		fills:  fills,
		logger: logger.With(slog.String("component", "fees")),
	}
}

// ConvertProtocolFee converts a fill's ETH-denominated protocol fee to USD
// and persists it.
//
// Malformed inputs are defects and fail hard so the queue layer redelivers
// and alerts. An unavailable rate is also an error here, unlike in the batch
// jobs: the fee cannot be silently dropped, so the message must come back.
// A write that matches no row surfaces domain.ErrNotReplicated (retryable).
func (fc *FeeConverter) ConvertProtocolFee(ctx context.Context, fillID string, date time.Time, rawAmount string) error {
	if strings.TrimSpace(fillID) == "" {
		return fmt.Errorf("fees: empty fill id")
	}
	if date.IsZero() {
		return fmt.Errorf("fees: fill %s: zero date", fillID)
	}
	if _, ok := new(big.Int).SetString(rawAmount, 10); !ok {
		return fmt.Errorf("fees: fill %s: malformed protocol fee amount %q", fillID, rawAmount)
	}

	rate, err := fc.rates.GetRate(ctx, "ETH", date)
	if err != nil {
		return fmt.Errorf("fees: fill %s: %w", fillID, err)
	}

	amount, err := FormatAmount(rawAmount, ethDecimals)
	if err != nil {
		return fmt.Errorf("fees: fill %s: %w", fillID, err)
	}
	usd := amount * rate

	if err := fc.fills.SaveProtocolFeeConversion(ctx, fillID, usd); err != nil {
		return fmt.Errorf("fees: fill %s: save protocol fee: %w", fillID, err)
	}

	fc.logger.Debug("protocol fee converted",
		slog.String("fill_id", fillID),
		slog.Float64("usd", usd),
	)
	return nil
}

// ConvertRelayerFees converts a fill's maker/taker relayer fees to USD and
// persists them. Fees denominated in a token the cache has not resolved are
// a recoverable condition: the fill is left untouched and picked up again
// once the token resolves.
func (fc *FeeConverter) ConvertRelayerFees(ctx context.Context, fill *domain.Fill) error {
	if len(fill.Fees) == 0 {
		return nil
	}

	var makerUSD, takerUSD *float64
	for _, fee := range fill.Fees {
		token, ok := fc.cache.Get(fee.TokenAddress)
		if !ok {
			return fmt.Errorf("fees: fill %s: fee token %s: %w", fill.ID, fee.TokenAddress, domain.ErrNotReady)
		}

		rate, err := fc.rates.GetRate(ctx, rates.NormalizeSymbol(token.Symbol), fill.Date)
		if err != nil {
			return fmt.Errorf("fees: fill %s: %w", fill.ID, err)
		}

		amount, err := FormatAmount(fee.RawAmount, token.Decimals)
		if err != nil {
			return fmt.Errorf("fees: fill %s: %w", fill.ID, err)
		}
		usd := amount * rate

		switch fee.TraderType {
		case domain.ActorMaker:
			makerUSD = addTo(makerUSD, usd)
		case domain.ActorTaker:
			takerUSD = addTo(takerUSD, usd)
		default:
			return fmt.Errorf("fees: fill %s: invalid trader type %q", fill.ID, fee.TraderType)
		}
	}

	if err := fc.fills.SaveRelayerFeeConversions(ctx, fill.ID, makerUSD, takerUSD); err != nil {
		return fmt.Errorf("fees: fill %s: save relayer fees: %w", fill.ID, err)
	}
	return nil
}

func addTo(sum *float64, v float64) *float64 {
	if sum == nil {
		return &v
	}
	total := *sum + v
	return &total
}
