package domain

import "time"

// Actor identifies which side of a trade an asset or fee belongs to.
type Actor string

const (
	ActorMaker Actor = "maker"
	ActorTaker Actor = "taker"
)

// PricingStatus tracks how far price derivation has progressed for a fill.
type PricingStatus string

const (
	// PricingUnset means price derivation has not run yet.
	PricingUnset PricingStatus = "unset"
	// PricingPriced means every asset carries a USD price.
	PricingPriced PricingStatus = "priced"
	// PricingUnpriceable means a price cannot be attributed to a single
	// token and derivation will never succeed for this fill.
	PricingUnpriceable PricingStatus = "unpriceable"
)

// AttributionType distinguishes the commercial role an entity played in a fill.
type AttributionType string

const (
	AttributionRelayer  AttributionType = "relayer"
	AttributionConsumer AttributionType = "consumer"
)

// Attribution links a fill to the entity that originated it.
type Attribution struct {
	EntityID string
	Type     AttributionType
}

// FillAsset is one asset leg of a fill. Index is the asset's ordinal within
// the fill and identifies the row on write-back. RawAmount is the unscaled
// on-chain integer amount encoded as a decimal string; PriceUSD and ValueUSD
// are set by the valuation and pricing stages.
type FillAsset struct {
	Index        int
	Actor        Actor
	TokenAddress string
	RawAmount    string
	PriceUSD     *float64
	ValueUSD     *float64
}

// FillFee is a relayer fee charged to one side of a fill.
type FillFee struct {
	TraderType   Actor
	TokenAddress string
	RawAmount    string
}

// Conversions holds the USD-denominated figures derived for a fill. Amount is
// only set once the fill has been measured; the invariant HasValue ⇔ Amount
// != nil is maintained by the valuation stage.
type Conversions struct {
	Amount      *float64
	MakerFee    *float64
	TakerFee    *float64
	ProtocolFee *float64
}

// Fill is one executed trade record, created upstream in an unmeasured state
// and progressively enriched by the valuation, pricing, fee-conversion and
// attribution stages. Fills are never deleted here.
type Fill struct {
	ID               string
	Date             time.Time
	MakerAddress     string
	TakerAddress     string
	SenderAddress    string
	AffiliateAddress string
	FeeRecipient     string
	ProtocolVersion  int
	ProtocolFeeRaw   string

	Assets []FillAsset
	Fees   []FillFee

	RelayerID     *string
	Attributions  []Attribution
	Conversions   Conversions
	PricingStatus PricingStatus
	HasValue      bool
}

// UnpricedAssets returns the assets of the fill that do not carry a USD price.
func (f *Fill) UnpricedAssets() []FillAsset {
	var out []FillAsset
	for _, a := range f.Assets {
		if a.PriceUSD == nil {
			out = append(out, a)
		}
	}
	return out
}

// AssetsByActor returns the assets belonging to the given side of the trade.
func (f *Fill) AssetsByActor(actor Actor) []FillAsset {
	var out []FillAsset
	for _, a := range f.Assets {
		if a.Actor == actor {
			out = append(out, a)
		}
	}
	return out
}

// LastTrade records the most recent measured trade for a (relayer, token)
// pair, maintained as bookkeeping alongside fill measurement.
type LastTrade struct {
	RelayerID    string
	TokenAddress string
	PriceUSD     float64
	Date         time.Time
}
