package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fillscope/internal/queue"
)

// Orchestrator manages the enrichment goroutines: one runner per sweep job
// plus the queue consumer.
type Orchestrator struct {
	runners  []*JobRunner
	consumer *queue.Consumer
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given runners and
// consumer. Either may be empty/nil when a mode runs only half the system.
func NewOrchestrator(runners []*JobRunner, consumer *queue.Consumer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runners:  runners,
		consumer: consumer,
		logger:   logger,
	}
}

// Run starts everything as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Int("runners", len(o.runners)),
		slog.Bool("consumer", o.consumer != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, r := range o.runners {
		g.Go(func() error {
			err := r.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("job runner: %w", err)
		})
	}

	if o.consumer != nil {
		g.Go(func() error {
			err := o.consumer.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("queue consumer: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
