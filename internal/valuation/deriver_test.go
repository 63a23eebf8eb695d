package valuation

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

func measuredFill(total float64, assets []domain.FillAsset) *domain.Fill {
	return &domain.Fill{
		ID:       "f1",
		HasValue: true,
		Conversions: domain.Conversions{
			Amount: &total,
		},
		Assets: assets,
	}
}

func priced(v float64) *float64 { return &v }

func TestDerivePrice(t *testing.T) {
	// $4500 fill, 15 ZRX (raw 1.5e19 at 18 decimals) unpriced on the taker
	// side: unit price 300.
	fill := measuredFill(4500, []domain.FillAsset{
		{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "25000000000000000000", PriceUSD: priced(180), ValueUSD: priced(4500)},
		{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "15000000000000000000"},
	})

	derived, outcome, err := DerivePrice(fill, cacheWith(zrx18()))
	if err != nil {
		t.Fatalf("DerivePrice: %v", err)
	}
	if outcome != OutcomeDerived {
		t.Fatalf("outcome = %v, want OutcomeDerived", outcome)
	}
	if derived.TokenAddress != zrxAddress {
		t.Errorf("TokenAddress = %s", derived.TokenAddress)
	}
	if math.Abs(derived.PriceUSD-300) > 1e-9 {
		t.Errorf("PriceUSD = %v, want 300", derived.PriceUSD)
	}
	if len(derived.AssetPrices) != 1 || derived.AssetPrices[0].Index != 1 {
		t.Fatalf("AssetPrices = %+v, want one entry for asset 1", derived.AssetPrices)
	}
	if math.Abs(derived.AssetPrices[0].ValueUSD-4500) > 1e-9 {
		t.Errorf("ValueUSD = %v, want 4500", derived.AssetPrices[0].ValueUSD)
	}
}

func TestDerivePriceSplitsAcrossFragments(t *testing.T) {
	// The unpriced token appears as two fragments; the price comes from the
	// summed quantity and each fragment gets its own value.
	fill := measuredFill(300, []domain.FillAsset{
		{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1", PriceUSD: priced(1), ValueUSD: priced(300)},
		{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "1000000000000000000"},
		{Index: 2, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "2000000000000000000"},
	})

	derived, outcome, err := DerivePrice(fill, cacheWith(zrx18()))
	if err != nil {
		t.Fatalf("DerivePrice: %v", err)
	}
	if outcome != OutcomeDerived {
		t.Fatalf("outcome = %v, want OutcomeDerived", outcome)
	}
	if math.Abs(derived.PriceUSD-100) > 1e-9 {
		t.Errorf("PriceUSD = %v, want 100", derived.PriceUSD)
	}
	if len(derived.AssetPrices) != 2 {
		t.Fatalf("AssetPrices = %+v, want two entries", derived.AssetPrices)
	}
	if math.Abs(derived.AssetPrices[0].ValueUSD-100) > 1e-9 || math.Abs(derived.AssetPrices[1].ValueUSD-200) > 1e-9 {
		t.Errorf("fragment values = %v, %v, want 100, 200",
			derived.AssetPrices[0].ValueUSD, derived.AssetPrices[1].ValueUSD)
	}
}

func TestDerivePriceZeroValue(t *testing.T) {
	fill := measuredFill(0, []domain.FillAsset{
		{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "0", PriceUSD: priced(0), ValueUSD: priced(0)},
		{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "0"},
	})

	_, outcome, err := DerivePrice(fill, cacheWith(zrx18()))
	if err != nil {
		t.Fatalf("DerivePrice: %v", err)
	}
	if outcome != OutcomeZeroValue {
		t.Fatalf("outcome = %v, want OutcomeZeroValue", outcome)
	}

	zeros := ZeroPrices(fill)
	if len(zeros) != 1 || zeros[0].Index != 1 || zeros[0].PriceUSD != 0 {
		t.Fatalf("ZeroPrices = %+v", zeros)
	}
}

func TestDerivePriceZeroValueSettlesBeforeShapeChecks(t *testing.T) {
	// Unpriced legs on both actors would normally be a precondition
	// violation, but a zero-value fill settles as zero-priced regardless.
	fill := measuredFill(0, []domain.FillAsset{
		{Index: 0, Actor: domain.ActorMaker, TokenAddress: zrxAddress, RawAmount: "0"},
		{Index: 1, Actor: domain.ActorTaker, TokenAddress: daiAddress, RawAmount: "0"},
	})

	_, outcome, err := DerivePrice(fill, cacheWith())
	if err != nil {
		t.Fatalf("DerivePrice: %v", err)
	}
	if outcome != OutcomeZeroValue {
		t.Fatalf("outcome = %v, want OutcomeZeroValue", outcome)
	}

	zeros := ZeroPrices(fill)
	if len(zeros) != 2 {
		t.Fatalf("ZeroPrices = %+v, want entries for both legs", zeros)
	}
}

func TestDerivePriceAmbiguous(t *testing.T) {
	t.Run("two distinct unpriced tokens", func(t *testing.T) {
		fill := measuredFill(100, []domain.FillAsset{
			{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1", PriceUSD: priced(1), ValueUSD: priced(100)},
			{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "1"},
			{Index: 2, Actor: domain.ActorTaker, TokenAddress: daiAddress, RawAmount: "1"},
		})
		_, outcome, err := DerivePrice(fill, cacheWith(zrx18()))
		if err != nil {
			t.Fatalf("DerivePrice: %v", err)
		}
		if outcome != OutcomeAmbiguous {
			t.Fatalf("outcome = %v, want OutcomeAmbiguous", outcome)
		}
	})

	t.Run("positive value against zero quantity", func(t *testing.T) {
		fill := measuredFill(100, []domain.FillAsset{
			{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1", PriceUSD: priced(1), ValueUSD: priced(100)},
			{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "0"},
		})
		_, outcome, err := DerivePrice(fill, cacheWith(zrx18()))
		if err != nil {
			t.Fatalf("DerivePrice: %v", err)
		}
		if outcome != OutcomeAmbiguous {
			t.Fatalf("outcome = %v, want OutcomeAmbiguous", outcome)
		}
	})
}

func TestDerivePricePreconditions(t *testing.T) {
	tests := []struct {
		name string
		fill *domain.Fill
	}{
		{
			name: "unmeasured fill",
			fill: &domain.Fill{ID: "f1", Assets: []domain.FillAsset{
				{Index: 0, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "1"},
			}},
		},
		{
			name: "no unpriced assets",
			fill: measuredFill(100, []domain.FillAsset{
				{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1", PriceUSD: priced(1), ValueUSD: priced(100)},
			}),
		},
		{
			name: "unpriced assets on both actors",
			fill: measuredFill(100, []domain.FillAsset{
				{Index: 0, Actor: domain.ActorMaker, TokenAddress: zrxAddress, RawAmount: "1"},
				{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "1"},
			}),
		},
		{
			name: "unresolved token",
			fill: measuredFill(100, []domain.FillAsset{
				{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1", PriceUSD: priced(1), ValueUSD: priced(100)},
				{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "1"},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DerivePrice(tt.fill, cacheWith())
			var pre *domain.PreconditionError
			if !errors.As(err, &pre) {
				t.Fatalf("got %v, want PreconditionError", err)
			}
		})
	}
}
