package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// TokenStore implements domain.TokenStore on PostgreSQL. Addresses are
// stored lowercase so lookups are case-insensitive.
type TokenStore struct {
	pool *pgxpool.Pool
}

var _ domain.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a TokenStore backed by the given client.
func NewTokenStore(client *Client) *TokenStore {
	return &TokenStore{pool: client.Pool()}
}

// GetByAddress returns the token stored for the given address.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (domain.Token, error) {
	var t domain.Token
	err := s.pool.QueryRow(ctx, `
		SELECT address, name, symbol, decimals, resolved
		FROM tokens WHERE address = $1`, strings.ToLower(address),
	).Scan(&t.Address, &t.Name, &t.Symbol, &t.Decimals, &t.Resolved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Token{}, fmt.Errorf("postgres: token %s: %w", address, domain.ErrNotFound)
		}
		return domain.Token{}, fmt.Errorf("postgres: get token %s: %w", address, err)
	}
	return t, nil
}

// ListResolved returns every token with known metadata.
func (s *TokenStore) ListResolved(ctx context.Context) ([]domain.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, name, symbol, decimals, resolved
		FROM tokens WHERE resolved = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		var t domain.Token
		if err := rows.Scan(&t.Address, &t.Name, &t.Symbol, &t.Decimals, &t.Resolved); err != nil {
			return nil, fmt.Errorf("postgres: scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolved tokens: %w", err)
	}
	return tokens, nil
}

// Upsert writes the token, replacing any previous metadata for the address.
func (s *TokenStore) Upsert(ctx context.Context, t domain.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (address, name, symbol, decimals, resolved)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			resolved = EXCLUDED.resolved`,
		strings.ToLower(t.Address), t.Name, t.Symbol, t.Decimals, t.Resolved)
	if err != nil {
		return fmt.Errorf("postgres: upsert token %s: %w", t.Address, err)
	}
	return nil
}
