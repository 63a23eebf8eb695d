package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/tokens"
)

type stubMetadataProvider struct {
	info domain.TokenInfo
	err  error
}

func (s *stubMetadataProvider) TokenInfo(ctx context.Context, address string) (domain.TokenInfo, error) {
	return s.info, s.err
}

type stubTokenStore struct {
	upserted []domain.Token
	err      error
}

func (s *stubTokenStore) GetByAddress(ctx context.Context, address string) (domain.Token, error) {
	return domain.Token{}, domain.ErrNotFound
}

func (s *stubTokenStore) ListResolved(ctx context.Context) ([]domain.Token, error) {
	return nil, nil
}

func (s *stubTokenStore) Upsert(ctx context.Context, t domain.Token) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = append(s.upserted, t)
	return nil
}

type noopLimiter struct{}

func (noopLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (noopLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	return nil
}

const zrxAddress = "0xe41d2489571d322189246dafa5ebde1f4699f498"

func TestResolveTokenHandler(t *testing.T) {
	provider := &stubMetadataProvider{info: domain.TokenInfo{Name: "0x Protocol", Symbol: "ZRX", Decimals: 18}}
	store := &stubTokenStore{}
	cache := tokens.NewCache()

	h := ResolveTokenHandler(provider, store, cache, noopLimiter{}, 250, slog.Default())

	payload, err := encodeResolveToken(zrxAddress)
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), payload))

	require.Len(t, store.upserted, 1)
	require.True(t, store.upserted[0].Resolved)
	require.Equal(t, "ZRX", store.upserted[0].Symbol)
	require.Equal(t, 18, store.upserted[0].Decimals)

	cached, ok := cache.Get(zrxAddress)
	require.True(t, ok, "resolved token must land in the cache")
	require.Equal(t, "ZRX", cached.Symbol)
}

func TestResolveTokenHandlerUnknownToken(t *testing.T) {
	provider := &stubMetadataProvider{err: domain.ErrNotFound}
	store := &stubTokenStore{}
	cache := tokens.NewCache()

	h := ResolveTokenHandler(provider, store, cache, noopLimiter{}, 250, slog.Default())

	payload, err := encodeResolveToken(zrxAddress)
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), payload), "unknown token is recorded, not retried")

	require.Len(t, store.upserted, 1)
	require.False(t, store.upserted[0].Resolved)

	_, ok := cache.Get(zrxAddress)
	require.False(t, ok, "unresolved token must not enter the cache")
}

func TestResolveTokenHandlerMalformedPayload(t *testing.T) {
	h := ResolveTokenHandler(&stubMetadataProvider{}, &stubTokenStore{}, tokens.NewCache(), noopLimiter{}, 250, slog.Default())
	// Malformed payloads are dropped, not redelivered forever.
	require.NoError(t, h(context.Background(), []byte("{")))
}
