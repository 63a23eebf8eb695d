package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/tokens"
	"github.com/alanyoungcy/fillscope/internal/valuation"
)

// DeriveJob sweeps measured fills with unpriced assets and back-derives asset
// prices from the fill's known USD value.
type DeriveJob struct {
	fills  domain.FillStore
	cache  *tokens.Cache
	batch  int
	logger *slog.Logger
}

// NewDeriveJob creates the price derivation sweep job.
func NewDeriveJob(fills domain.FillStore, cache *tokens.Cache, batch int, logger *slog.Logger) *DeriveJob {
	return &DeriveJob{
		fills:  fills,
		cache:  cache,
		batch:  batch,
		logger: logger.With(slog.String("job", JobDerivePrices)),
	}
}

// Name implements Job.
func (j *DeriveJob) Name() string { return JobDerivePrices }

// Run processes one batch, settling each fill as priced, zero-priced, or
// permanently unpriceable.
func (j *DeriveJob) Run(ctx context.Context) error {
	fills, err := j.fills.ListPriceable(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("derive: list priceable: %w", err)
	}

	priced := 0
	for i := range fills {
		fill := &fills[i]

		derived, outcome, err := valuation.DerivePrice(fill, j.cache)
		if err != nil {
			var pre *domain.PreconditionError
			if errors.As(err, &pre) {
				// Not derivable yet (or never); leave for a later tick.
				j.logger.Debug("derivation skipped",
					slog.String("fill_id", fill.ID),
					slog.String("reason", pre.Reason),
				)
				continue
			}
			j.logger.Error("derivation failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch outcome {
		case valuation.OutcomeDerived:
			err = j.fills.SaveDerivedPrices(ctx, fill.ID, derived.AssetPrices)
		case valuation.OutcomeZeroValue:
			err = j.fills.SaveDerivedPrices(ctx, fill.ID, valuation.ZeroPrices(fill))
		case valuation.OutcomeAmbiguous:
			err = j.fills.SetPricingStatus(ctx, fill.ID, domain.PricingUnpriceable)
		}
		if err != nil {
			j.logger.Error("derivation write failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if outcome != valuation.OutcomeAmbiguous {
			priced++
		}
	}

	if priced > 0 {
		j.logger.Info("prices derived", slog.Int("count", priced), slog.Int("scanned", len(fills)))
	}
	return nil
}
