package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL. The
// signature column carries a unique constraint; Insert leans on it for
// idempotency instead of a separate read-then-write.
type TransactionStore struct {
	q querier
}

const txCols = `id, signature, market_id, type, wallet, amount,
	price_per_token, total_value, platform_fee, creator_fee, total_fee,
	status, block_time, created_at`

func scanTx(row pgx.Row) (domain.Transaction, error) {
	var t domain.Transaction
	var typ, status string
	err := row.Scan(
		&t.ID, &t.Signature, &t.MarketID, &typ, &t.Wallet, &t.Amount,
		&t.PricePerToken, &t.TotalValue, &t.PlatformFee, &t.CreatorFee, &t.TotalFee,
		&status, &t.BlockTime, &t.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Type = domain.TradeType(typ)
	t.Status = domain.TxStatus(status)
	return t, nil
}

// Insert writes the transaction unless its signature is already settled.
// ON CONFLICT DO NOTHING makes the race between the indexer and the API
// confirm path resolve inside the database: exactly one caller creates the
// row, everyone else gets the stored one back.
func (s *TransactionStore) Insert(ctx context.Context, t domain.Transaction) (domain.Transaction, bool, error) {
	const query = `
		INSERT INTO transactions (
			signature, market_id, type, wallet, amount,
			price_per_token, total_value, platform_fee, creator_fee, total_fee,
			status, block_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (signature) DO NOTHING
		RETURNING id, created_at`

	err := s.q.QueryRow(ctx, query,
		t.Signature, t.MarketID, string(t.Type), t.Wallet, t.Amount,
		t.PricePerToken, t.TotalValue, t.PlatformFee, t.CreatorFee, t.TotalFee,
		string(t.Status), t.BlockTime, t.CreatedAt,
	).Scan(&t.ID, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		existing, getErr := s.GetBySignature(ctx, t.Signature)
		if getErr != nil {
			return domain.Transaction{}, false, fmt.Errorf("postgres: load conflicting signature %s: %w", t.Signature, getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("postgres: insert transaction %s: %w", t.Signature, err)
	}
	return t, true, nil
}

// Exists reports whether a signature has been settled.
func (s *TransactionStore) Exists(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE signature = $1)`, signature).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check signature %s: %w", signature, err)
	}
	return exists, nil
}

// GetBySignature retrieves a settled transaction by its chain signature.
func (s *TransactionStore) GetBySignature(ctx context.Context, signature string) (domain.Transaction, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+txCols+` FROM transactions WHERE signature = $1`, signature)
	t, err := scanTx(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction %s: %w", signature, err)
	}
	return t, nil
}

// ListByMarket returns a market's transactions newest first.
func (s *TransactionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	return s.listFiltered(ctx, "market_id", marketID, opts)
}

// ListByWallet returns a wallet's transactions newest first, across markets.
func (s *TransactionStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Transaction, error) {
	return s.listFiltered(ctx, "wallet", wallet, opts)
}

func (s *TransactionStore) listFiltered(ctx context.Context, col, val string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query := `SELECT ` + txCols + ` FROM transactions WHERE ` + col + ` = $1`
	args := []any{val}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND block_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND block_time < $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY block_time DESC"

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
		return nil, fmt.Errorf("postgres: list transactions by %s: %w", col, err)
	}
	defer rows.Close()
	return collectTxs(rows)
}

// Stats returns trade volume (lamports) and trade count for a market since
// the cutoff. Market creations do not count as trades.
func (s *TransactionStore) Stats(ctx context.Context, marketID string, since time.Time) (int64, int64, error) {
	const query = `
		SELECT COALESCE(SUM(total_value), 0), COUNT(*)
		FROM transactions
		WHERE market_id = $1 AND block_time >= $2 AND type IN ('BUY', 'SELL')`

	var volume, trades int64
	if err := s.q.QueryRow(ctx, query, marketID, since).Scan(&volume, &trades); err != nil {
		return 0, 0, fmt.Errorf("postgres: market stats %s: %w", marketID, err)
	}
	return volume, trades, nil
}

// TopMarketsByVolume ranks markets by traded lamports since the cutoff.
func (s *TransactionStore) TopMarketsByVolume(ctx context.Context, since time.Time, limit int) ([]domain.MarketVolume, error) {
	const query = `
		SELECT market_id, COALESCE(SUM(total_value), 0) AS volume, COUNT(*)
		FROM transactions
		WHERE block_time >= $1 AND type IN ('BUY', 'SELL')
		GROUP BY market_id
		ORDER BY volume DESC, market_id
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top markets by volume: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketVolume
	for rows.Next() {
		var mv domain.MarketVolume
		if err := rows.Scan(&mv.MarketID, &mv.Volume, &mv.Trades); err != nil {
			return nil, fmt.Errorf("postgres: scan market volume: %w", err)
		}
		out = append(out, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate market volumes: %w", err)
	}
	return out, nil
}

// ListBefore returns transactions with a block time before the cutoff, oldest
// first. The archiver drains these into cold storage.
func (s *TransactionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Transaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+txCols+` FROM transactions WHERE block_time < $1 ORDER BY block_time`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions before %s: %w", before, err)
	}
	defer rows.Close()
	return collectTxs(rows)
}

func collectTxs(rows pgx.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate transactions: %w", err)
	}
	return out, nil
}
