package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// FeeEnqueueJob sweeps fills whose fees still need USD conversion and
// publishes conversion messages. Job ids keep a fill's conversion in flight
// at most once even though the sweep re-selects it until the write lands.
type FeeEnqueueJob struct {
	fills  domain.FillStore
	queue  domain.JobQueue
	batch  int
	logger *slog.Logger
}

// NewFeeEnqueueJob creates the fee conversion enqueue job.
func NewFeeEnqueueJob(fills domain.FillStore, queue domain.JobQueue, batch int, logger *slog.Logger) *FeeEnqueueJob {
	return &FeeEnqueueJob{
		fills:  fills,
		queue:  queue,
		batch:  batch,
		logger: logger.With(slog.String("job", JobEnqueueFees)),
	}
}

// Name implements Job.
func (j *FeeEnqueueJob) Name() string { return JobEnqueueFees }

// Run enqueues one batch of protocol fee conversions and one batch of relayer
// fee conversions.
func (j *FeeEnqueueJob) Run(ctx context.Context) error {
	if err := j.enqueueProtocolFees(ctx); err != nil {
		return err
	}
	return j.enqueueRelayerFees(ctx)
}

func (j *FeeEnqueueJob) enqueueProtocolFees(ctx context.Context) error {
	fills, err := j.fills.ListUnconvertedProtocolFees(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("enqueue fees: list protocol fees: %w", err)
	}

	for _, fill := range fills {
		payload, err := json.Marshal(protocolFeePayload{
			FillID:    fill.ID,
			Date:      fill.Date,
			RawAmount: fill.ProtocolFeeRaw,
		})
		if err != nil {
			return fmt.Errorf("enqueue fees: encode protocol fee payload: %w", err)
		}
		err = j.queue.Publish(ctx, QueueFees, JobConvertProtocolFee, payload, domain.PublishOptions{
			JobID: "protocol-fee:" + fill.ID,
		})
		if err != nil {
			j.logger.Error("enqueue protocol fee failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (j *FeeEnqueueJob) enqueueRelayerFees(ctx context.Context) error {
	fills, err := j.fills.ListUnconvertedRelayerFees(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("enqueue fees: list relayer fees: %w", err)
	}

	for _, fill := range fills {
		payload, err := json.Marshal(relayerFeesPayload{FillID: fill.ID})
		if err != nil {
			return fmt.Errorf("enqueue fees: encode relayer fees payload: %w", err)
		}
		err = j.queue.Publish(ctx, QueueFees, JobConvertRelayerFees, payload, domain.PublishOptions{
			JobID: "relayer-fees:" + fill.ID,
		})
		if err != nil {
			j.logger.Error("enqueue relayer fees failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
