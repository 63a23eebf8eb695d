package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/tokens"
	"github.com/alanyoungcy/fillscope/internal/valuation"
)

// Queue and job names. Fee conversion and token resolution run through the
// message queue; the sweep jobs run on tickers.
const (
	QueueFees   = "fees"
	QueueTokens = "tokens"

	JobMeasureFills        = "measure-fills"
	JobDerivePrices        = "derive-prices"
	JobResolveAttributions = "resolve-attributions"
	JobEnqueueFees         = "enqueue-fee-conversions"

	JobConvertProtocolFee = "convert-protocol-fee"
	JobConvertRelayerFees = "convert-relayer-fees"
	JobResolveToken       = "resolve-token"
)

type protocolFeePayload struct {
	FillID    string    `json:"fillId"`
	Date      time.Time `json:"date"`
	RawAmount string    `json:"rawAmount"`
}

type relayerFeesPayload struct {
	FillID string `json:"fillId"`
}

type resolveTokenPayload struct {
	Address string `json:"address"`
}

func encodeResolveToken(address string) ([]byte, error) {
	return json.Marshal(resolveTokenPayload{Address: address})
}

// ConvertProtocolFeeHandler returns the queue handler that converts a fill's
// protocol fee to USD. Errors are returned so the message is redelivered;
// the conversion is idempotent, so a redelivered message at worst rewrites
// the same figure.
func ConvertProtocolFeeHandler(fc *valuation.FeeConverter, logger *slog.Logger) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var p protocolFeePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			// A malformed payload never becomes valid; log and drop.
			logger.Error("malformed protocol fee payload", slog.String("error", err.Error()))
			return nil
		}
		if err := fc.ConvertProtocolFee(ctx, p.FillID, p.Date, p.RawAmount); err != nil {
			return fmt.Errorf("convert protocol fee for %s: %w", p.FillID, err)
		}
		return nil
	}
}

// ConvertRelayerFeesHandler returns the queue handler that converts a fill's
// maker and taker fees to USD.
func ConvertRelayerFeesHandler(fills domain.FillStore, fc *valuation.FeeConverter, logger *slog.Logger) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var p relayerFeesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Error("malformed relayer fees payload", slog.String("error", err.Error()))
			return nil
		}

		fill, err := fills.GetByID(ctx, p.FillID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// The fill has not replicated yet; retry later.
				return fmt.Errorf("relayer fees for %s: %w", p.FillID, domain.ErrNotReplicated)
			}
			return fmt.Errorf("load fill %s: %w", p.FillID, err)
		}

		if err := fc.ConvertRelayerFees(ctx, &fill); err != nil {
			return fmt.Errorf("convert relayer fees for %s: %w", p.FillID, err)
		}
		return nil
	}
}

// ResolveTokenHandler returns the queue handler that fetches token metadata
// from the metadata provider and records it. A token the provider does not
// know is recorded unresolved so the lookup is not repeated forever.
func ResolveTokenHandler(provider domain.TokenMetadataProvider, store domain.TokenStore, cache *tokens.Cache, limiter domain.RateLimiter, requestsPerMinute int, logger *slog.Logger) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var p resolveTokenPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Error("malformed resolve token payload", slog.String("error", err.Error()))
			return nil
		}

		if err := limiter.Wait(ctx, "provider:ethplorer", requestsPerMinute, time.Minute); err != nil {
			return fmt.Errorf("resolve token %s: limiter: %w", p.Address, err)
		}

		info, err := provider.TokenInfo(ctx, p.Address)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				if err := store.Upsert(ctx, domain.Token{Address: p.Address}); err != nil {
					return fmt.Errorf("record unresolved token %s: %w", p.Address, err)
				}
				logger.Warn("token metadata unavailable", slog.String("token", p.Address))
				return nil
			}
			return fmt.Errorf("resolve token %s: %w", p.Address, err)
		}

		token := domain.Token{
			Address:  p.Address,
			Name:     info.Name,
			Symbol:   info.Symbol,
			Decimals: info.Decimals,
			Resolved: true,
		}
		if err := store.Upsert(ctx, token); err != nil {
			return fmt.Errorf("store token %s: %w", p.Address, err)
		}
		cache.Add(token)

		logger.Info("token resolved",
			slog.String("token", p.Address),
			slog.String("symbol", token.Symbol),
		)
		return nil
	}
}
