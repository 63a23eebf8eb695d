package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// FillStore implements domain.FillStore on PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

var _ domain.FillStore = (*FillStore)(nil)

// NewFillStore creates a FillStore backed by the given client.
func NewFillStore(client *Client) *FillStore {
	return &FillStore{pool: client.Pool()}
}

const fillColumns = `
	id, date, maker_address, taker_address, sender_address, affiliate_address,
	fee_recipient, protocol_version, protocol_fee_raw, relayer_id,
	conversion_amount, conversion_maker_fee, conversion_taker_fee,
	conversion_protocol_fee, pricing_status, has_value`

func scanFill(row pgx.Row) (domain.Fill, error) {
	var (
		f      domain.Fill
		status string
	)
	err := row.Scan(
		&f.ID, &f.Date, &f.MakerAddress, &f.TakerAddress, &f.SenderAddress,
		&f.AffiliateAddress, &f.FeeRecipient, &f.ProtocolVersion,
		&f.ProtocolFeeRaw, &f.RelayerID,
		&f.Conversions.Amount, &f.Conversions.MakerFee,
		&f.Conversions.TakerFee, &f.Conversions.ProtocolFee,
		&status, &f.HasValue,
	)
	if err != nil {
		return domain.Fill{}, err
	}
	f.PricingStatus = domain.PricingStatus(status)
	return f, nil
}

// GetByID loads a fill with its asset and fee legs and attributions.
func (s *FillStore) GetByID(ctx context.Context, id string) (domain.Fill, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fillColumns+` FROM fills WHERE id = $1`, id)
	f, err := scanFill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Fill{}, fmt.Errorf("postgres: fill %s: %w", id, domain.ErrNotFound)
		}
		return domain.Fill{}, fmt.Errorf("postgres: get fill %s: %w", id, err)
	}

	fills := []domain.Fill{f}
	if err := s.loadChildren(ctx, fills); err != nil {
		return domain.Fill{}, err
	}
	return fills[0], nil
}

func (s *FillStore) listWhere(ctx context.Context, predicate string, limit int) ([]domain.Fill, error) {
	query := `SELECT ` + fillColumns + ` FROM fills WHERE ` + predicate + ` ORDER BY date ASC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}

	if err := s.loadChildren(ctx, fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// loadChildren populates assets, fees and attributions for the given fills in
// three batched queries.
func (s *FillStore) loadChildren(ctx context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	ids := make([]string, len(fills))
	index := make(map[string]*domain.Fill, len(fills))
	for i := range fills {
		ids[i] = fills[i].ID
		index[fills[i].ID] = &fills[i]
	}

	rows, err := s.pool.Query(ctx, `
		SELECT fill_id, idx, actor, token_address, raw_amount, price_usd, value_usd
		FROM fill_assets WHERE fill_id = ANY($1) ORDER BY fill_id, idx`, ids)
	if err != nil {
		return fmt.Errorf("postgres: load fill assets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			fillID string
			a      domain.FillAsset
			actor  string
		)
		if err := rows.Scan(&fillID, &a.Index, &actor, &a.TokenAddress, &a.RawAmount, &a.PriceUSD, &a.ValueUSD); err != nil {
			return fmt.Errorf("postgres: scan fill asset: %w", err)
		}
		a.Actor = domain.Actor(actor)
		index[fillID].Assets = append(index[fillID].Assets, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load fill assets: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT fill_id, trader_type, token_address, raw_amount
		FROM fill_fees WHERE fill_id = ANY($1) ORDER BY fill_id, idx`, ids)
	if err != nil {
		return fmt.Errorf("postgres: load fill fees: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			fillID string
			fee    domain.FillFee
			trader string
		)
		if err := rows.Scan(&fillID, &trader, &fee.TokenAddress, &fee.RawAmount); err != nil {
			return fmt.Errorf("postgres: scan fill fee: %w", err)
		}
		fee.TraderType = domain.Actor(trader)
		index[fillID].Fees = append(index[fillID].Fees, fee)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load fill fees: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT fill_id, entity_id, type
		FROM fill_attributions WHERE fill_id = ANY($1) ORDER BY fill_id, type`, ids)
	if err != nil {
		return fmt.Errorf("postgres: load fill attributions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			fillID string
			attr   domain.Attribution
			typ    string
		)
		if err := rows.Scan(&fillID, &attr.EntityID, &typ); err != nil {
			return fmt.Errorf("postgres: scan fill attribution: %w", err)
		}
		attr.Type = domain.AttributionType(typ)
		index[fillID].Attributions = append(index[fillID].Attributions, attr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load fill attributions: %w", err)
	}

	return nil
}

// ListUnmeasured returns fills that have no USD value yet, oldest first.
func (s *FillStore) ListUnmeasured(ctx context.Context, limit int) ([]domain.Fill, error) {
	return s.listWhere(ctx, `has_value = FALSE`, limit)
}

// ListPriceable returns measured fills with an unset pricing status and at
// least one asset still missing a price.
func (s *FillStore) ListPriceable(ctx context.Context, limit int) ([]domain.Fill, error) {
	return s.listWhere(ctx, `
		has_value = TRUE AND pricing_status = 'unset'
		AND EXISTS (
			SELECT 1 FROM fill_assets a
			WHERE a.fill_id = fills.id AND a.price_usd IS NULL
		)`, limit)
}

// ListUnattributed returns fills that have not been through attribution
// resolution.
func (s *FillStore) ListUnattributed(ctx context.Context, limit int) ([]domain.Fill, error) {
	return s.listWhere(ctx, `attributions_resolved = FALSE`, limit)
}

// ListUnconvertedProtocolFees returns fills carrying a protocol fee with no
// USD conversion yet.
func (s *FillStore) ListUnconvertedProtocolFees(ctx context.Context, limit int) ([]domain.Fill, error) {
	return s.listWhere(ctx, `protocol_fee_raw <> '' AND conversion_protocol_fee IS NULL`, limit)
}

// ListUnconvertedRelayerFees returns fills carrying relayer fees with no
// maker/taker conversion yet.
func (s *FillStore) ListUnconvertedRelayerFees(ctx context.Context, limit int) ([]domain.Fill, error) {
	return s.listWhere(ctx, `
		conversion_maker_fee IS NULL AND conversion_taker_fee IS NULL
		AND EXISTS (SELECT 1 FROM fill_fees ff WHERE ff.fill_id = fills.id)`, limit)
}

// SaveMeasurement writes a measurement in one transaction. A fill that is
// already measured is left untouched so re-delivered work is a no-op.
func (s *FillStore) SaveMeasurement(ctx context.Context, m domain.Measurement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin measurement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var hasValue bool
	err = tx.QueryRow(ctx, `SELECT has_value FROM fills WHERE id = $1 FOR UPDATE`, m.FillID).Scan(&hasValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: fill %s: %w", m.FillID, domain.ErrNotReplicated)
		}
		return fmt.Errorf("postgres: lock fill %s: %w", m.FillID, err)
	}
	if hasValue {
		return tx.Commit(ctx)
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE fills SET conversion_amount = $2, has_value = TRUE
		WHERE id = $1`, m.FillID, m.TotalUSD)
	for _, p := range m.AssetPrices {
		batch.Queue(`
			UPDATE fill_assets SET price_usd = $3, value_usd = $4
			WHERE fill_id = $1 AND idx = $2`, m.FillID, p.Index, p.PriceUSD, p.ValueUSD)
	}
	for _, lt := range m.LastTrades {
		batch.Queue(`
			INSERT INTO last_trades (relayer_id, token_address, price_usd, date)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (relayer_id, token_address) DO UPDATE
			SET price_usd = EXCLUDED.price_usd, date = EXCLUDED.date
			WHERE last_trades.date <= EXCLUDED.date`,
			lt.RelayerID, lt.TokenAddress, lt.PriceUSD, lt.Date)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: write measurement for %s: %w", m.FillID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit measurement for %s: %w", m.FillID, err)
	}
	return nil
}

// SaveDerivedPrices writes back-derived asset prices and marks the fill
// priced, in one transaction.
func (s *FillStore) SaveDerivedPrices(ctx context.Context, fillID string, prices []domain.AssetPrice) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin derived prices tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(`
			UPDATE fill_assets SET price_usd = $3, value_usd = $4
			WHERE fill_id = $1 AND idx = $2`, fillID, p.Index, p.PriceUSD, p.ValueUSD)
	}
	batch.Queue(`UPDATE fills SET pricing_status = $2 WHERE id = $1`,
		fillID, string(domain.PricingPriced))
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: write derived prices for %s: %w", fillID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit derived prices for %s: %w", fillID, err)
	}
	return nil
}

// SetPricingStatus updates only the fill's pricing status.
func (s *FillStore) SetPricingStatus(ctx context.Context, fillID string, status domain.PricingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fills SET pricing_status = $2 WHERE id = $1`, fillID, string(status))
	if err != nil {
		return fmt.Errorf("postgres: set pricing status for %s: %w", fillID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: fill %s: %w", fillID, domain.ErrNotReplicated)
	}
	return nil
}

// SaveAttributions replaces the fill's attributions and relayer id and marks
// attribution resolution done.
func (s *FillStore) SaveAttributions(ctx context.Context, fillID string, attrs []domain.Attribution, relayerID *string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin attributions tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM fill_attributions WHERE fill_id = $1`, fillID)
	for _, a := range attrs {
		batch.Queue(`
			INSERT INTO fill_attributions (fill_id, entity_id, type)
			VALUES ($1, $2, $3)`, fillID, a.EntityID, string(a.Type))
	}
	batch.Queue(`
		UPDATE fills SET relayer_id = $2, attributions_resolved = TRUE
		WHERE id = $1`, fillID, relayerID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: write attributions for %s: %w", fillID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit attributions for %s: %w", fillID, err)
	}
	return nil
}

// SaveProtocolFeeConversion sets the fill's protocol fee USD figure. No
// matched row means the fill has not replicated yet.
func (s *FillStore) SaveProtocolFeeConversion(ctx context.Context, fillID string, usd float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fills SET conversion_protocol_fee = $2 WHERE id = $1`, fillID, usd)
	if err != nil {
		return fmt.Errorf("postgres: save protocol fee for %s: %w", fillID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: fill %s: %w", fillID, domain.ErrNotReplicated)
	}
	return nil
}

// SaveRelayerFeeConversions sets the maker and/or taker fee USD figures. A
// nil argument leaves that column untouched.
func (s *FillStore) SaveRelayerFeeConversions(ctx context.Context, fillID string, makerUSD, takerUSD *float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fills SET
			conversion_maker_fee = COALESCE($2, conversion_maker_fee),
			conversion_taker_fee = COALESCE($3, conversion_taker_fee)
		WHERE id = $1`, fillID, makerUSD, takerUSD)
	if err != nil {
		return fmt.Errorf("postgres: save relayer fees for %s: %w", fillID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: fill %s: %w", fillID, domain.ErrNotReplicated)
	}
	return nil
}
