package domain

import (
	"context"
	"time"
)

// AssetPrice carries a derived USD price and value for one asset of a fill,
// addressed by the asset's ordinal within the fill.
type AssetPrice struct {
	Index    int
	PriceUSD float64
	ValueUSD float64
}

// Measurement is the full result of valuing one fill: per-asset prices on the
// measurable side, the fill's total USD amount, and the last-trade
// bookkeeping rows for the resolved relayer/token pairs. It is persisted in a
// single transaction so partial visibility never occurs.
type Measurement struct {
	FillID      string
	TotalUSD    float64
	AssetPrices []AssetPrice
	LastTrades  []LastTrade
}

// FillStore persists fills and the enrichment derived from them. List
// predicates select fills that still need a given pipeline stage, which makes
// every stage naturally resumable: re-selecting and re-writing an
// already-enriched fill is a no-op.
type FillStore interface {
	GetByID(ctx context.Context, id string) (Fill, error)

	// ListUnmeasured returns fills with no USD value yet, oldest first.
	ListUnmeasured(ctx context.Context, limit int) ([]Fill, error)
	// ListPriceable returns measured fills whose pricing status is unset
	// and which have at least one unpriced asset.
	ListPriceable(ctx context.Context, limit int) ([]Fill, error)
	// ListUnattributed returns fills that have not been through
	// attribution resolution.
	ListUnattributed(ctx context.Context, limit int) ([]Fill, error)
	// ListUnconvertedProtocolFees returns fills carrying a protocol fee
	// with no USD conversion yet.
	ListUnconvertedProtocolFees(ctx context.Context, limit int) ([]Fill, error)
	// ListUnconvertedRelayerFees returns fills carrying relayer fees with
	// no maker/taker fee conversion yet.
	ListUnconvertedRelayerFees(ctx context.Context, limit int) ([]Fill, error)

	// SaveMeasurement writes a measurement transactionally: asset prices,
	// the fill's conversions.amount and hasValue flag, and the last-trade
	// rows. Writing an identical measurement twice is a no-op.
	SaveMeasurement(ctx context.Context, m Measurement) error
	// SaveDerivedPrices writes back-derived asset prices and marks the
	// fill priced, in one transaction.
	SaveDerivedPrices(ctx context.Context, fillID string, prices []AssetPrice) error
	// SetPricingStatus updates only the fill's pricing status.
	SetPricingStatus(ctx context.Context, fillID string, status PricingStatus) error
	// SaveAttributions replaces the fill's attributions and relayer id.
	SaveAttributions(ctx context.Context, fillID string, attrs []Attribution, relayerID *string) error
	// SaveProtocolFeeConversion sets conversions.protocolFee. It returns
	// ErrNotReplicated when no row matched, signalled by the write count
	// rather than a driver error.
	SaveProtocolFeeConversion(ctx context.Context, fillID string, usd float64) error
	// SaveRelayerFeeConversions sets conversions.makerFee and/or takerFee.
	// Nil leaves a field untouched. Same ErrNotReplicated contract as
	// SaveProtocolFeeConversion.
	SaveRelayerFeeConversions(ctx context.Context, fillID string, makerUSD, takerUSD *float64) error
}

// TokenStore persists token metadata.
type TokenStore interface {
	GetByAddress(ctx context.Context, address string) (Token, error)
	ListResolved(ctx context.Context) ([]Token, error)
	Upsert(ctx context.Context, t Token) error
}

// RateLimiter paces calls against rate-limited external providers.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking so a scheduled job runs on at most
// one replica per tick.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// PublishOptions control queue message delivery. JobID deduplicates
// in-flight messages for the same logical unit of work; Delay defers
// visibility of the message.
type PublishOptions struct {
	Delay time.Duration
	JobID string
}

// JobQueue enqueues messages for queue consumers. Delivery is at-least-once;
// consumers must be idempotent.
type JobQueue interface {
	Publish(ctx context.Context, queue, job string, payload []byte, opts PublishOptions) error
}
