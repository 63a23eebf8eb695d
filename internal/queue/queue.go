// Package queue implements a lightweight at-least-once job queue on Redis
// Streams: publishers append job messages (with optional delay and jobId
// deduplication), and consumers drain registered handlers through consumer
// groups with automatic reclaim of stalled deliveries.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	cacheredis "github.com/alanyoungcy/fillscope/internal/cache/redis"
	"github.com/alanyoungcy/fillscope/internal/domain"
)

const (
	// streamMaxLen caps stream growth via XADD MAXLEN ~.
	streamMaxLen int64 = 100000
	// dedupeTTL bounds how long a jobId suppresses re-publication. Long
	// enough to cover retries of one logical unit of work, short enough
	// that a lost message eventually re-enqueues.
	dedupeTTL = 6 * time.Hour
)

// promoteDelayedLua atomically moves due entries from a queue's delayed
// sorted set onto its stream. Each member is a JSON envelope produced by
// Publish.
const promoteDelayedLua = `
local delayed = KEYS[1]
local stream = KEYS[2]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local due = redis.call('ZRANGEBYSCORE', delayed, 0, now, 'LIMIT', 0, limit)
for _, member in ipairs(due) do
    local env = cjson.decode(member)
    redis.call('XADD', stream, 'MAXLEN', '~', ARGV[3], '*',
        'job', env.job, 'payload', env.payload, 'job_id', env.job_id or '')
    redis.call('ZREM', delayed, member)
end
return #due
`

func streamKey(queue string) string {
	return "queue:" + queue
}

func delayedKey(queue string) string {
	return "queue:" + queue + ":delayed"
}

func dedupeKey(queue, jobID string) string {
	return "queue:" + queue + ":dedupe:" + jobID
}

// envelope is the wire form of a delayed message.
type envelope struct {
	Job     string `json:"job"`
	Payload string `json:"payload"`
	JobID   string `json:"job_id,omitempty"`
	Nonce   string `json:"nonce"`
}

// commander is the subset of redis commands the publisher issues. It is
// satisfied by *redis.Client and narrow enough to fake in tests.
type commander interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Publisher enqueues job messages.
type Publisher struct {
	rdb     commander
	promote *redis.Script
}

// NewPublisher creates a Publisher backed by the given Client.
func NewPublisher(c *cacheredis.Client) *Publisher {
	return newPublisher(c.Underlying())
}

func newPublisher(rdb commander) *Publisher {
	return &Publisher{
		rdb:     rdb,
		promote: redis.NewScript(promoteDelayedLua),
	}
}

// Publish appends a job message to the queue. When opts.JobID is set, a
// second publish with the same id within the dedupe window is silently
// dropped, so retried producers do not fan out duplicate work. When
// opts.Delay is positive the message becomes visible only after the delay.
func (p *Publisher) Publish(ctx context.Context, queue, job string, payload []byte, opts domain.PublishOptions) error {
	if opts.JobID != "" {
		ok, err := p.rdb.SetNX(ctx, dedupeKey(queue, opts.JobID), "1", dedupeTTL).Result()
		if err != nil {
			return fmt.Errorf("queue: dedupe %s/%s: %w", queue, opts.JobID, err)
		}
		if !ok {
			return nil
		}
	}

	if err := p.append(ctx, queue, job, payload, opts); err != nil {
		// Release the dedupe claim, otherwise re-publishing this jobId
		// would be swallowed for the whole TTL after a transient failure.
		p.clearDedupe(ctx, queue, opts.JobID)
		return err
	}
	return nil
}

// append writes the message to the delayed set or directly onto the stream.
func (p *Publisher) append(ctx context.Context, queue, job string, payload []byte, opts domain.PublishOptions) error {
	if opts.Delay > 0 {
		env, err := json.Marshal(envelope{
			Job:     job,
			Payload: string(payload),
			JobID:   opts.JobID,
			Nonce:   uuid.New().String(),
		})
		if err != nil {
			return fmt.Errorf("queue: marshal envelope: %w", err)
		}
		readyAt := float64(time.Now().Add(opts.Delay).UnixMilli())
		if err := p.rdb.ZAdd(ctx, delayedKey(queue), redis.Z{Score: readyAt, Member: env}).Err(); err != nil {
			return fmt.Errorf("queue: delay %s/%s: %w", queue, job, err)
		}
		return nil
	}

	args := &redis.XAddArgs{
		Stream: streamKey(queue),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"job":     job,
			"payload": payload,
			"job_id":  opts.JobID,
		},
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("queue: publish %s/%s: %w", queue, job, err)
	}
	return nil
}

// promoteDelayed moves up to limit due delayed messages onto the stream.
func (p *Publisher) promoteDelayed(ctx context.Context, queue string, limit int) error {
	err := p.promote.Run(ctx, p.rdb,
		[]string{delayedKey(queue), streamKey(queue)},
		time.Now().UnixMilli(), limit, streamMaxLen,
	).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("queue: promote delayed %s: %w", queue, err)
	}
	return nil
}

// clearDedupe releases a jobId after its message was fully processed, so the
// same logical unit of work can be enqueued again later.
func (p *Publisher) clearDedupe(ctx context.Context, queue, jobID string) {
	if jobID == "" {
		return
	}
	_ = p.rdb.Del(ctx, dedupeKey(queue, jobID)).Err()
}

// Compile-time interface check.
var _ domain.JobQueue = (*Publisher)(nil)
