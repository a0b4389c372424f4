package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	q querier
}

const marketCols = `id, address, owner_wallet, mint, escrow, treasury,
	initial_price, current_price, circulating_supply, total_supply,
	trade_count, total_platform_fees, total_creator_fees,
	name, symbol, description, image_url, metadata_uri,
	status, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.ID, &m.Address, &m.Owner, &m.Mint, &m.Escrow, &m.Treasury,
		&m.InitialPrice, &m.CurrentPrice, &m.CirculatingSupply, &m.TotalSupply,
		&m.TradeCount, &m.TotalPlatformFees, &m.TotalCreatorFees,
		&m.Name, &m.Symbol, &m.Description, &m.ImageURL, &m.MetadataURI,
		&status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, address, owner_wallet, mint, escrow, treasury,
			initial_price, current_price, circulating_supply, total_supply,
			trade_count, total_platform_fees, total_creator_fees,
			name, symbol, description, image_url, metadata_uri,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, NOW()
		)`

	_, err := s.q.Exec(ctx, query,
		m.ID, m.Address, m.Owner, m.Mint, m.Escrow, m.Treasury,
		m.InitialPrice, m.CurrentPrice, m.CirculatingSupply, m.TotalSupply,
		m.TradeCount, m.TotalPlatformFees, m.TotalCreatorFees,
		m.Name, m.Symbol, m.Description, m.ImageURL, m.MetadataURI,
		string(m.Status), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.Address, err)
	}
	return nil
}

// Update rewrites the mutable settlement state of a market.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			current_price       = $2,
			circulating_supply  = $3,
			trade_count         = $4,
			total_platform_fees = $5,
			total_creator_fees  = $6,
			initial_price       = $7,
			status              = $8,
			updated_at          = NOW()
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		m.ID, m.CurrentPrice, m.CirculatingSupply, m.TradeCount,
		m.TotalPlatformFees, m.TotalCreatorFees, m.InitialPrice, string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByAddress retrieves a market by its account address.
func (s *MarketStore) GetByAddress(ctx context.Context, address string) (domain.Market, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE address = $1`, address)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by address %s: %w", address, err)
	}
	return m, nil
}

// GetByMint retrieves a market by its token mint.
func (s *MarketStore) GetByMint(ctx context.Context, mint string) (domain.Market, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE mint = $1`, mint)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by mint %s: %w", mint, err)
	}
	return m, nil
}

// ListActive returns active markets newest first with pagination and optional
// time filtering.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return out, nil
}

// Count returns the total number of markets, any status.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}
