package valuation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/tokens"
)

const (
	wethAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	daiAddress  = "0x6b175474e89094c44da98b954eedeac495271d0f"
	zrxAddress  = "0xe41d2489571d322189246dafa5ebde1f4699f498"
)

type stubRates struct {
	rates map[string]float64
	err   error
	calls int
}

func (s *stubRates) GetRate(ctx context.Context, symbol string, at time.Time) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.rates[symbol], nil
}

func cacheWith(ts ...domain.Token) *tokens.Cache {
	c := tokens.NewCache()
	for _, t := range ts {
		c.Add(t)
	}
	return c
}

func weth18() domain.Token {
	return domain.Token{Address: wethAddress, Symbol: "WETH", Decimals: 18, Resolved: true}
}

func zrx18() domain.Token {
	return domain.Token{Address: zrxAddress, Symbol: "ZRX", Decimals: 18, Resolved: true}
}

func TestMeasurableActor(t *testing.T) {
	tests := []struct {
		name      string
		assets    []domain.FillAsset
		wantActor domain.Actor
		wantOK    bool
	}{
		{
			name: "maker side all base",
			assets: []domain.FillAsset{
				{Actor: domain.ActorMaker, TokenAddress: wethAddress},
				{Actor: domain.ActorTaker, TokenAddress: zrxAddress},
			},
			wantActor: domain.ActorMaker,
			wantOK:    true,
		},
		{
			name: "taker side all base",
			assets: []domain.FillAsset{
				{Actor: domain.ActorMaker, TokenAddress: zrxAddress},
				{Actor: domain.ActorTaker, TokenAddress: daiAddress},
			},
			wantActor: domain.ActorTaker,
			wantOK:    true,
		},
		{
			name: "both sides base, maker wins",
			assets: []domain.FillAsset{
				{Actor: domain.ActorMaker, TokenAddress: daiAddress},
				{Actor: domain.ActorTaker, TokenAddress: wethAddress},
			},
			wantActor: domain.ActorMaker,
			wantOK:    true,
		},
		{
			name: "mixed side does not qualify",
			assets: []domain.FillAsset{
				{Actor: domain.ActorMaker, TokenAddress: wethAddress},
				{Actor: domain.ActorMaker, TokenAddress: zrxAddress},
				{Actor: domain.ActorTaker, TokenAddress: zrxAddress},
			},
			wantOK: false,
		},
		{
			name: "empty side never qualifies",
			assets: []domain.FillAsset{
				{Actor: domain.ActorTaker, TokenAddress: zrxAddress},
			},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fill := &domain.Fill{Assets: tt.assets}
			actor, ok := MeasurableActor(fill)
			if ok != tt.wantOK || actor != tt.wantActor {
				t.Errorf("got (%q, %v), want (%q, %v)", actor, ok, tt.wantActor, tt.wantOK)
			}
		})
	}
}

func TestMeasure(t *testing.T) {
	relayer := "radar-relay"
	fill := &domain.Fill{
		ID:        "f1",
		Date:      time.Date(2019, 10, 26, 16, 0, 0, 0, time.UTC),
		RelayerID: &relayer,
		Assets: []domain.FillAsset{
			// 1.5 WETH on the maker side.
			{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1500000000000000000"},
			{Index: 1, Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "5000000000000000000000"},
		},
	}

	rates := &stubRates{rates: map[string]float64{"WETH": 180}}
	m := NewMeasurer(rates, cacheWith(weth18()), slog.Default())

	got, err := m.Measure(context.Background(), fill)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if got.FillID != "f1" {
		t.Errorf("FillID = %q", got.FillID)
	}
	if math.Abs(got.TotalUSD-270) > 1e-9 {
		t.Errorf("TotalUSD = %v, want 270", got.TotalUSD)
	}
	if len(got.AssetPrices) != 1 || got.AssetPrices[0].Index != 0 {
		t.Fatalf("AssetPrices = %+v, want one entry for asset 0", got.AssetPrices)
	}
	if got.AssetPrices[0].PriceUSD != 180 {
		t.Errorf("PriceUSD = %v, want 180", got.AssetPrices[0].PriceUSD)
	}
	if len(got.LastTrades) != 1 || got.LastTrades[0].RelayerID != relayer {
		t.Fatalf("LastTrades = %+v, want one entry for %s", got.LastTrades, relayer)
	}
}

func TestMeasureNoLastTradesWithoutRelayer(t *testing.T) {
	fill := &domain.Fill{
		ID:   "f1",
		Date: time.Now(),
		Assets: []domain.FillAsset{
			{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1000000000000000000"},
		},
	}

	m := NewMeasurer(&stubRates{rates: map[string]float64{"WETH": 180}}, cacheWith(weth18()), slog.Default())
	got, err := m.Measure(context.Background(), fill)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if len(got.LastTrades) != 0 {
		t.Errorf("LastTrades = %+v, want none", got.LastTrades)
	}
}

func TestMeasureNotMeasurable(t *testing.T) {
	fill := &domain.Fill{
		ID: "f1",
		Assets: []domain.FillAsset{
			{Actor: domain.ActorMaker, TokenAddress: zrxAddress, RawAmount: "1"},
			{Actor: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "1"},
		},
	}

	m := NewMeasurer(&stubRates{}, cacheWith(), slog.Default())
	if _, err := m.Measure(context.Background(), fill); !errors.Is(err, ErrNotMeasurable) {
		t.Fatalf("got %v, want ErrNotMeasurable", err)
	}
}

func TestMeasureUnresolvedTokenFetchesNoRates(t *testing.T) {
	fill := &domain.Fill{
		ID:   "f1",
		Date: time.Now(),
		Assets: []domain.FillAsset{
			{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1"},
			{Index: 1, Actor: domain.ActorMaker, TokenAddress: daiAddress, RawAmount: "1"},
		},
	}

	// DAI is missing from the cache: the fill defers before any rate call.
	rates := &stubRates{rates: map[string]float64{"WETH": 180}}
	m := NewMeasurer(rates, cacheWith(weth18()), slog.Default())

	_, err := m.Measure(context.Background(), fill)
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("got %v, want ErrNotReady", err)
	}
	if rates.calls != 0 {
		t.Errorf("provider called %d times, want 0", rates.calls)
	}
}

func TestMeasureRateFailureAbortsWholeFill(t *testing.T) {
	fill := &domain.Fill{
		ID:   "f1",
		Date: time.Now(),
		Assets: []domain.FillAsset{
			{Index: 0, Actor: domain.ActorMaker, TokenAddress: wethAddress, RawAmount: "1"},
		},
	}

	m := NewMeasurer(&stubRates{err: domain.ErrRateUnavailable}, cacheWith(weth18()), slog.Default())
	if _, err := m.Measure(context.Background(), fill); !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("got %v, want ErrRateUnavailable", err)
	}
}
