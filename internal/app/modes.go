package app

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/fillscope/internal/pipeline"
	"github.com/alanyoungcy/fillscope/internal/queue"
)

// JobsMode runs only the batch sweep jobs: measurement, price derivation,
// attribution resolution, and fee conversion enqueueing.
func (a *App) JobsMode(ctx context.Context, deps *Dependencies) error {
	orch := pipeline.NewOrchestrator(a.buildRunners(deps), nil, a.logger)
	return orch.Run(ctx)
}

// ConsumersMode runs only the queue consumers: fee conversion and token
// resolution.
func (a *App) ConsumersMode(ctx context.Context, deps *Dependencies) error {
	orch := pipeline.NewOrchestrator(nil, a.buildConsumer(deps), a.logger)
	return orch.Run(ctx)
}

// FullMode runs the sweep jobs and the queue consumers in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	orch := pipeline.NewOrchestrator(a.buildRunners(deps), a.buildConsumer(deps), a.logger)
	return orch.Run(ctx)
}

// buildRunners constructs one JobRunner per sweep job, all sharing the
// notifier-backed exhaustion hook.
func (a *App) buildRunners(deps *Dependencies) []*pipeline.JobRunner {
	pc := a.cfg.Pipeline
	onExhaust := pipeline.ExhaustionFunc(deps.Notifier.JobExhausted)

	measure := pipeline.NewMeasureJob(deps.FillStore, deps.Measurer, deps.TokenCache, deps.Publisher, pc.BatchSize, a.logger)
	derive := pipeline.NewDeriveJob(deps.FillStore, deps.TokenCache, pc.BatchSize, a.logger)
	attribute := pipeline.NewAttributionJob(deps.FillStore, deps.Resolver, pc.BatchSize, a.logger)
	enqueue := pipeline.NewFeeEnqueueJob(deps.FillStore, deps.Publisher, pc.BatchSize, a.logger)

	delay := pc.RetryDelay.Duration
	return []*pipeline.JobRunner{
		pipeline.NewJobRunner(measure, pc.MeasureInterval.Duration, pc.JobMaxRetries(pc.MeasureMaxRetries), delay, deps.LockManager, onExhaust, a.logger),
		pipeline.NewJobRunner(derive, pc.DeriveInterval.Duration, pc.JobMaxRetries(pc.DeriveMaxRetries), delay, deps.LockManager, onExhaust, a.logger),
		pipeline.NewJobRunner(attribute, pc.AttributionInterval.Duration, pc.JobMaxRetries(pc.AttributionMaxRetries), delay, deps.LockManager, onExhaust, a.logger),
		pipeline.NewJobRunner(enqueue, pc.FeeEnqueueInterval.Duration, pc.JobMaxRetries(pc.FeeEnqueueMaxRetries), delay, deps.LockManager, onExhaust, a.logger),
	}
}

// buildConsumer constructs the queue consumer with all handlers registered.
func (a *App) buildConsumer(deps *Dependencies) *queue.Consumer {
	logger := a.logger.With(slog.String("component", "consumer"))

	consumer := queue.NewConsumer(deps.RedisClient, deps.Publisher, logger)
	consumer.Register(pipeline.QueueFees, pipeline.JobConvertProtocolFee,
		pipeline.ConvertProtocolFeeHandler(deps.FeeConverter, logger))
	consumer.Register(pipeline.QueueFees, pipeline.JobConvertRelayerFees,
		pipeline.ConvertRelayerFeesHandler(deps.FillStore, deps.FeeConverter, logger))
	consumer.Register(pipeline.QueueTokens, pipeline.JobResolveToken,
		pipeline.ResolveTokenHandler(deps.MetadataProvider, deps.TokenStore, deps.TokenCache, deps.RateLimiter,
			a.cfg.Providers.RateLimitPerMinute, logger))
	return consumer
}
