package valuation

import (
	"fmt"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/tokens"
)

// DeriveOutcome classifies the result of a price derivation attempt.
type DeriveOutcome int

const (
	// OutcomeDerived means a price was computed for the unpriced token.
	OutcomeDerived DeriveOutcome = iota
	// OutcomeZeroValue means the fill's value is zero so there is nothing
	// to derive; the caller marks the fill priced with zero prices.
	OutcomeZeroValue
	// OutcomeAmbiguous means the fill value cannot be attributed to a
	// single token; the caller marks the fill unpriceable.
	OutcomeAmbiguous
)

// DerivedPrice is the result of back-computing a missing unit price from a
// fill's known value.
type DerivedPrice struct {
	TokenAddress string
	PriceUSD     float64
	// AssetPrices carries the price and value for every unpriced fragment
	// of the token, ready for transactional write-back.
	AssetPrices []domain.AssetPrice
}

// DerivePrice back-computes the missing per-asset unit price of a measured
// fill. It is called only for fills with a known value and at least one
// unpriced asset; any other state violates the valuation invariants and
// yields a PreconditionError.
func DerivePrice(fill *domain.Fill, cache *tokens.Cache) (DerivedPrice, DeriveOutcome, error) {
	if !fill.HasValue || fill.Conversions.Amount == nil {
		return DerivedPrice{}, 0, &domain.PreconditionError{FillID: fill.ID, Reason: "fill has not been measured"}
	}
	value := *fill.Conversions.Amount

	// A zero value settles before any shape checks: every unpriced fragment
	// is worth zero no matter how the assets split across actors or tokens.
	if value == 0 {
		return DerivedPrice{}, OutcomeZeroValue, nil
	}

	unpriced := fill.UnpricedAssets()
	if len(unpriced) == 0 {
		return DerivedPrice{}, 0, &domain.PreconditionError{FillID: fill.ID, Reason: "fill has no unpriced assets"}
	}

	actors := make(map[domain.Actor]bool)
	tokenSet := make(map[string]bool)
	for _, a := range unpriced {
		actors[a.Actor] = true
		tokenSet[a.TokenAddress] = true
	}
	if len(actors) > 1 {
		return DerivedPrice{}, 0, &domain.PreconditionError{FillID: fill.ID, Reason: "fill has unpriced assets for both actors"}
	}

	// More than one distinct token: the value's split between them is
	// unknowable.
	if len(tokenSet) > 1 {
		return DerivedPrice{}, OutcomeAmbiguous, nil
	}

	tokenAddress := unpriced[0].TokenAddress
	token, ok := cache.Get(tokenAddress)
	if !ok {
		return DerivedPrice{}, 0, &domain.PreconditionError{
			FillID: fill.ID,
			Reason: fmt.Sprintf("fill relies on unresolved token %s", tokenAddress),
		}
	}

	raws := make([]string, len(unpriced))
	for i, a := range unpriced {
		raws[i] = a.RawAmount
	}
	totalRaw, err := sumRawAmounts(raws)
	if err != nil {
		return DerivedPrice{}, 0, &domain.PreconditionError{FillID: fill.ID, Reason: err.Error()}
	}

	totalAmount := scale(totalRaw, token.Decimals)
	if totalAmount == 0 {
		// A positive value against zero token quantity has no meaningful
		// unit price.
		return DerivedPrice{}, OutcomeAmbiguous, nil
	}

	price := value / totalAmount

	derived := DerivedPrice{TokenAddress: tokenAddress, PriceUSD: price}
	for _, a := range unpriced {
		amount, err := FormatAmount(a.RawAmount, token.Decimals)
		if err != nil {
			return DerivedPrice{}, 0, &domain.PreconditionError{FillID: fill.ID, Reason: err.Error()}
		}
		derived.AssetPrices = append(derived.AssetPrices, domain.AssetPrice{
			Index:    a.Index,
			PriceUSD: price,
			ValueUSD: price * amount,
		})
	}

	return derived, OutcomeDerived, nil
}

// ZeroPrices builds zero price/value entries for every unpriced asset of a
// fill, used when a zero-value fill is marked priced.
func ZeroPrices(fill *domain.Fill) []domain.AssetPrice {
	var out []domain.AssetPrice
	for _, a := range fill.UnpricedAssets() {
		out = append(out, domain.AssetPrice{Index: a.Index})
	}
	return out
}
