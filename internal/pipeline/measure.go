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

// MeasureJob sweeps unmeasured fills and values the measurable ones. Fills
// whose tokens have not resolved yet get resolution jobs enqueued and are
// picked up again on a later tick.
type MeasureJob struct {
	fills    domain.FillStore
	measurer *valuation.Measurer
	cache    *tokens.Cache
	queue    domain.JobQueue
	batch    int
	logger   *slog.Logger
}

// NewMeasureJob creates the measurement sweep job.
func NewMeasureJob(fills domain.FillStore, measurer *valuation.Measurer, cache *tokens.Cache, queue domain.JobQueue, batch int, logger *slog.Logger) *MeasureJob {
	return &MeasureJob{
		fills:    fills,
		measurer: measurer,
		cache:    cache,
		queue:    queue,
		batch:    batch,
		logger:   logger.With(slog.String("job", JobMeasureFills)),
	}
}

// Name implements Job.
func (j *MeasureJob) Name() string { return JobMeasureFills }

// Run processes one batch. A failure on one fill never blocks the rest of the
// batch.
func (j *MeasureJob) Run(ctx context.Context) error {
	fills, err := j.fills.ListUnmeasured(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("measure: list unmeasured: %w", err)
	}

	measured := 0
	for i := range fills {
		fill := &fills[i]

		m, err := j.measurer.Measure(ctx, fill)
		switch {
		case err == nil:
		case errors.Is(err, valuation.ErrNotMeasurable):
			continue
		case errors.Is(err, domain.ErrNotReady):
			j.enqueueTokenResolution(ctx, fill)
			continue
		case errors.Is(err, domain.ErrRateUnavailable):
			j.logger.Warn("rate unavailable, deferring fill",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		default:
			j.logger.Error("measurement failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := j.fills.SaveMeasurement(ctx, m); err != nil {
			j.logger.Error("save measurement failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		measured++
	}

	if measured > 0 {
		j.logger.Info("fills measured", slog.Int("count", measured), slog.Int("scanned", len(fills)))
	}
	return nil
}

// enqueueTokenResolution publishes a resolve-token job for every token the
// fill touches that is missing from the cache. The job id deduplicates
// per-address so a popular token is resolved once.
func (j *MeasureJob) enqueueTokenResolution(ctx context.Context, fill *domain.Fill) {
	seen := map[string]bool{}
	addresses := make([]string, 0, len(fill.Assets)+len(fill.Fees))
	for _, a := range fill.Assets {
		addresses = append(addresses, a.TokenAddress)
	}
	for _, f := range fill.Fees {
		addresses = append(addresses, f.TokenAddress)
	}

	for _, addr := range addresses {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		if _, ok := j.cache.Get(addr); ok {
			continue
		}

		payload, err := encodeResolveToken(addr)
		if err != nil {
			j.logger.Error("encode resolve-token payload", slog.String("error", err.Error()))
			continue
		}
		err = j.queue.Publish(ctx, QueueTokens, JobResolveToken, payload, domain.PublishOptions{
			JobID: "resolve-token:" + addr,
		})
		if err != nil {
			j.logger.Error("enqueue resolve-token failed",
				slog.String("token", addr),
				slog.String("error", err.Error()),
			)
		}
	}
}
