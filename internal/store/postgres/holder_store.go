package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// HolderStore implements domain.HolderStore using PostgreSQL.
type HolderStore struct {
	q querier
}

const holderCols = `id, market_id, wallet, balance, total_bought, total_sold,
	average_buy_price, realized_pnl, first_purchase, last_activity`

func scanHolder(row pgx.Row) (domain.Holder, error) {
	var h domain.Holder
	err := row.Scan(
		&h.ID, &h.MarketID, &h.Wallet, &h.Balance, &h.TotalBought, &h.TotalSold,
		&h.AverageBuyPrice, &h.RealizedPnL, &h.FirstPurchase, &h.LastActivity,
	)
	if err != nil {
		return domain.Holder{}, err
	}
	return h, nil
}

// Get retrieves one wallet's position in one market.
func (s *HolderStore) Get(ctx context.Context, marketID, wallet string) (domain.Holder, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+holderCols+` FROM holders WHERE market_id = $1 AND wallet = $2`,
		marketID, wallet)
	h, err := scanHolder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Holder{}, domain.ErrNotFound
		}
		return domain.Holder{}, fmt.Errorf("postgres: get holder %s/%s: %w", marketID, wallet, err)
	}
	return h, nil
}

// Create inserts a new position row.
func (s *HolderStore) Create(ctx context.Context, h domain.Holder) error {
	const query = `
		INSERT INTO holders (
			id, market_id, wallet, balance, total_bought, total_sold,
			average_buy_price, realized_pnl, first_purchase, last_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.q.Exec(ctx, query,
		h.ID, h.MarketID, h.Wallet, h.Balance, h.TotalBought, h.TotalSold,
		h.AverageBuyPrice, h.RealizedPnL, h.FirstPurchase, h.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("postgres: create holder %s/%s: %w", h.MarketID, h.Wallet, err)
	}
	return nil
}

// Update rewrites a position row.
func (s *HolderStore) Update(ctx context.Context, h domain.Holder) error {
	const query = `
		UPDATE holders SET
			balance           = $3,
			total_bought      = $4,
			total_sold        = $5,
			average_buy_price = $6,
			realized_pnl      = $7,
			last_activity     = $8
		WHERE market_id = $1 AND wallet = $2`

	tag, err := s.q.Exec(ctx, query,
		h.MarketID, h.Wallet, h.Balance, h.TotalBought, h.TotalSold,
		h.AverageBuyPrice, h.RealizedPnL, h.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("postgres: update holder %s/%s: %w", h.MarketID, h.Wallet, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a position row. Deleting an absent row is not an error.
func (s *HolderStore) Delete(ctx context.Context, marketID, wallet string) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM holders WHERE market_id = $1 AND wallet = $2`, marketID, wallet)
	if err != nil {
		return fmt.Errorf("postgres: delete holder %s/%s: %w", marketID, wallet, err)
	}
	return nil
}

// TopByBalance returns the market's largest positions.
func (s *HolderStore) TopByBalance(ctx context.Context, marketID string, limit int) ([]domain.Holder, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+holderCols+` FROM holders WHERE market_id = $1 ORDER BY balance DESC LIMIT $2`,
		marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top holders %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectHolders(rows)
}

// CountByMarket returns the number of live positions in a market.
func (s *HolderStore) CountByMarket(ctx context.Context, marketID string) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM holders WHERE market_id = $1`, marketID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count holders %s: %w", marketID, err)
	}
	return n, nil
}

// ListByWallet returns every live position a wallet holds, across markets.
func (s *HolderStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Holder, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+holderCols+` FROM holders WHERE wallet = $1 ORDER BY market_id`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings %s: %w", wallet, err)
	}
	defer rows.Close()
	return collectHolders(rows)
}

func collectHolders(rows pgx.Rows) ([]domain.Holder, error) {
	var out []domain.Holder
	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan holder: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate holders: %w", err)
	}
	return out, nil
}
