package valuation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// stubFillStore records conversion writes; the embedded interface panics on
// anything the fee converter should never call.
type stubFillStore struct {
	domain.FillStore

	protocolFeeUSD map[string]float64
	makerUSD       *float64
	takerUSD       *float64
	saveErr        error
}

func newStubFillStore() *stubFillStore {
	return &stubFillStore{protocolFeeUSD: map[string]float64{}}
}

func (s *stubFillStore) SaveProtocolFeeConversion(ctx context.Context, fillID string, usd float64) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.protocolFeeUSD[fillID] = usd
	return nil
}

func (s *stubFillStore) SaveRelayerFeeConversions(ctx context.Context, fillID string, makerUSD, takerUSD *float64) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.makerUSD = makerUSD
	s.takerUSD = takerUSD
	return nil
}

func TestConvertProtocolFee(t *testing.T) {
	store := newStubFillStore()
	rates := &stubRates{rates: map[string]float64{"ETH": 200}}
	fc := NewFeeConverter(rates, cacheWith(), store, slog.Default())

	date := time.Date(2019, 11, 1, 0, 0, 0, 0, time.UTC)
	// 0.0015 ETH at $200.
	if err := fc.ConvertProtocolFee(context.Background(), "f1", date, "1500000000000000"); err != nil {
		t.Fatalf("ConvertProtocolFee: %v", err)
	}
	if got := store.protocolFeeUSD["f1"]; math.Abs(got-0.3) > 1e-12 {
		t.Errorf("protocol fee = %v, want 0.3", got)
	}
}

func TestConvertProtocolFeeValidation(t *testing.T) {
	fc := NewFeeConverter(&stubRates{}, cacheWith(), newStubFillStore(), slog.Default())
	date := time.Now()

	tests := []struct {
		name   string
		fillID string
		date   time.Time
		raw    string
	}{
		{"empty fill id", "", date, "1"},
		{"zero date", "f1", time.Time{}, "1"},
		{"malformed amount", "f1", date, "not-a-number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fc.ConvertProtocolFee(context.Background(), tt.fillID, tt.date, tt.raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestConvertProtocolFeeRateUnavailable(t *testing.T) {
	store := newStubFillStore()
	fc := NewFeeConverter(&stubRates{err: domain.ErrRateUnavailable}, cacheWith(), store, slog.Default())

	err := fc.ConvertProtocolFee(context.Background(), "f1", time.Now(), "1")
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("got %v, want ErrRateUnavailable", err)
	}
	if len(store.protocolFeeUSD) != 0 {
		t.Error("conversion persisted despite unavailable rate")
	}
}

func TestConvertRelayerFees(t *testing.T) {
	store := newStubFillStore()
	rates := &stubRates{rates: map[string]float64{"ZRX": 0.25, "ETH": 200}}
	fc := NewFeeConverter(rates, cacheWith(zrx18(), weth18()), store, slog.Default())

	fill := &domain.Fill{
		ID:   "f1",
		Date: time.Now(),
		Fees: []domain.FillFee{
			// Two maker fees in ZRX sum; one taker fee in WETH.
			{TraderType: domain.ActorMaker, TokenAddress: zrxAddress, RawAmount: "4000000000000000000"},
			{TraderType: domain.ActorMaker, TokenAddress: zrxAddress, RawAmount: "2000000000000000000"},
			{TraderType: domain.ActorTaker, TokenAddress: wethAddress, RawAmount: "10000000000000000"},
		},
	}
	if err := fc.ConvertRelayerFees(context.Background(), fill); err != nil {
		t.Fatalf("ConvertRelayerFees: %v", err)
	}
	if store.makerUSD == nil || math.Abs(*store.makerUSD-1.5) > 1e-9 {
		t.Errorf("maker fee = %v, want 1.5", store.makerUSD)
	}
	if store.takerUSD == nil || math.Abs(*store.takerUSD-2) > 1e-9 {
		t.Errorf("taker fee = %v, want 2", store.takerUSD)
	}
}

func TestConvertRelayerFeesOneSideOnly(t *testing.T) {
	store := newStubFillStore()
	fc := NewFeeConverter(&stubRates{rates: map[string]float64{"ZRX": 1}}, cacheWith(zrx18()), store, slog.Default())

	fill := &domain.Fill{
		ID:   "f1",
		Date: time.Now(),
		Fees: []domain.FillFee{
			{TraderType: domain.ActorTaker, TokenAddress: zrxAddress, RawAmount: "1000000000000000000"},
		},
	}
	if err := fc.ConvertRelayerFees(context.Background(), fill); err != nil {
		t.Fatalf("ConvertRelayerFees: %v", err)
	}
	if store.makerUSD != nil {
		t.Errorf("maker fee = %v, want nil", *store.makerUSD)
	}
	if store.takerUSD == nil || math.Abs(*store.takerUSD-1) > 1e-9 {
		t.Errorf("taker fee = %v, want 1", store.takerUSD)
	}
}

func TestConvertRelayerFeesUnresolvedToken(t *testing.T) {
	store := newStubFillStore()
	fc := NewFeeConverter(&stubRates{}, cacheWith(), store, slog.Default())

	fill := &domain.Fill{
		ID:   "f1",
		Date: time.Now(),
		Fees: []domain.FillFee{
			{TraderType: domain.ActorMaker, TokenAddress: zrxAddress, RawAmount: "1"},
		},
	}
	err := fc.ConvertRelayerFees(context.Background(), fill)
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("got %v, want ErrNotReady", err)
	}
	if store.makerUSD != nil || store.takerUSD != nil {
		t.Error("conversion persisted despite unresolved token")
	}
}

func TestConvertRelayerFeesNoFees(t *testing.T) {
	fc := NewFeeConverter(&stubRates{}, cacheWith(), newStubFillStore(), slog.Default())
	if err := fc.ConvertRelayerFees(context.Background(), &domain.Fill{ID: "f1"}); err != nil {
		t.Fatalf("ConvertRelayerFees: %v", err)
	}
}
