package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	cacheredis "github.com/alanyoungcy/fillscope/internal/cache/redis"
)

const (
	consumerGroup = "fillscope"
	// readBlock bounds how long one XREADGROUP blocks so the loop can
	// notice context cancellation and promote delayed messages.
	readBlock = 2 * time.Second
	readCount = 16
	// claimMinIdle is how long a pending delivery may sit unacknowledged
	// before another consumer reclaims it.
	claimMinIdle = time.Minute
)

// Handler processes exactly one message's payload per invocation and must be
// idempotent: delivery is at-least-once, so re-processing an already-enriched
// fill has to be a no-op or self-correcting. Returning nil acknowledges the
// message. Returning an error leaves it pending for redelivery — handlers
// reserve that for defects, and log-and-return-nil for recoverable
// conditions.
type Handler func(ctx context.Context, payload []byte) error

// Consumer drains queue streams, dispatching messages to handlers registered
// per (queue, job) pair.
type Consumer struct {
	rdb      *redis.Client
	pub      *Publisher
	name     string
	logger   *slog.Logger
	handlers map[string]map[string]Handler // queue -> job -> handler
}

// NewConsumer creates a Consumer with a unique consumer name within the
// group.
func NewConsumer(c *cacheredis.Client, pub *Publisher, logger *slog.Logger) *Consumer {
	return &Consumer{
		rdb:      c.Underlying(),
		pub:      pub,
		name:     "consumer-" + uuid.New().String(),
		logger:   logger.With(slog.String("component", "queue_consumer")),
		handlers: make(map[string]map[string]Handler),
	}
}

// Register binds a handler to a (queue, job) pair. Must be called before Run.
func (c *Consumer) Register(queue, job string, h Handler) {
	if c.handlers[queue] == nil {
		c.handlers[queue] = make(map[string]Handler)
	}
	c.handlers[queue][job] = h
}

// Run consumes every registered queue until the context is cancelled. Each
// queue gets its own loop; Run blocks until all loops stop.
func (c *Consumer) Run(ctx context.Context) error {
	errc := make(chan error, len(c.handlers))
	for queue := range c.handlers {
		if err := c.ensureGroup(ctx, queue); err != nil {
			return err
		}
		go func(queue string) {
			errc <- c.consumeLoop(ctx, queue)
		}(queue)
	}

	var firstErr error
	for range c.handlers {
		if err := <-errc; err != nil && firstErr == nil && ctx.Err() == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ensureGroup creates the consumer group, tolerating an existing one.
func (c *Consumer) ensureGroup(ctx context.Context, queue string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, streamKey(queue), consumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("queue: create group %s: %w", queue, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (c *Consumer) consumeLoop(ctx context.Context, queue string) error {
	logger := c.logger.With(slog.String("queue", queue))
	logger.Info("queue consumer started", slog.String("consumer", c.name))

	for {
		if ctx.Err() != nil {
			logger.Info("queue consumer stopped")
			return nil
		}

		if err := c.pub.promoteDelayed(ctx, queue, readCount); err != nil {
			logger.Warn("promote delayed failed", slog.String("error", err.Error()))
		}

		// Reclaim deliveries another consumer started but never
		// acknowledged.
		claimed, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   streamKey(queue),
			Group:    consumerGroup,
			Consumer: c.name,
			MinIdle:  claimMinIdle,
			Start:    "0-0",
			Count:    readCount,
		}).Result()
		if err != nil && err != redis.Nil && ctx.Err() == nil {
			logger.Warn("autoclaim failed", slog.String("error", err.Error()))
		}
		for _, msg := range claimed {
			c.dispatch(ctx, queue, msg, logger)
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: c.name,
			Streams:  []string{streamKey(queue), ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("queue: read %s: %w", queue, err)
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.dispatch(ctx, queue, msg, logger)
			}
		}
	}
}

// dispatch routes one message to its handler. Success (or an unknown job
// name, which redelivery cannot fix) acknowledges; handler errors leave the
// message pending for redelivery.
func (c *Consumer) dispatch(ctx context.Context, queue string, msg redis.XMessage, logger *slog.Logger) {
	job, _ := msg.Values["job"].(string)
	jobID, _ := msg.Values["job_id"].(string)
	payload := rawPayload(msg.Values["payload"])

	handler, ok := c.handlers[queue][job]
	if !ok {
		logger.Error("no handler for job, dropping message",
			slog.String("job", job),
			slog.String("message_id", msg.ID),
		)
		c.ack(ctx, queue, msg.ID)
		return
	}

	if err := handler(ctx, payload); err != nil {
		logger.Error("handler failed, message left for redelivery",
			slog.String("job", job),
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	c.ack(ctx, queue, msg.ID)
	c.pub.clearDedupe(ctx, queue, jobID)
}

func (c *Consumer) ack(ctx context.Context, queue, id string) {
	if err := c.rdb.XAck(ctx, streamKey(queue), consumerGroup, id).Err(); err != nil {
		c.logger.Warn("ack failed",
			slog.String("queue", queue),
			slog.String("message_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func rawPayload(v interface{}) []byte {
	switch p := v.(type) {
	case string:
		return []byte(p)
	case []byte:
		return p
	default:
		return nil
	}
}
