package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL. Rows are created
// lazily by the earnings upserts.
type UserStore struct {
	q querier
}

const userCols = `id, wallet, total_earnings_as_creator, markets_created, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Wallet, &u.TotalEarningsAsCreator, &u.MarketsCreated,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// GetByWallet retrieves a user by wallet address.
func (s *UserStore) GetByWallet(ctx context.Context, wallet string) (domain.User, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE wallet = $1`, wallet)
	u, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", wallet, err)
	}
	return u, nil
}

// AddCreatorEarnings upserts the wallet's row and adds amount to its
// creator-earnings accumulator.
func (s *UserStore) AddCreatorEarnings(ctx context.Context, wallet string, amount int64) error {
	const query = `
		INSERT INTO users (id, wallet, total_earnings_as_creator, markets_created, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
		ON CONFLICT (wallet) DO UPDATE SET
			total_earnings_as_creator = users.total_earnings_as_creator + EXCLUDED.total_earnings_as_creator,
			updated_at = NOW()`

	if _, err := s.q.Exec(ctx, query, uuid.NewString(), wallet, amount); err != nil {
		return fmt.Errorf("postgres: add creator earnings %s: %w", wallet, err)
	}
	return nil
}

// IncrementMarketsCreated upserts the wallet's row and bumps its market
// creation counter.
func (s *UserStore) IncrementMarketsCreated(ctx context.Context, wallet string) error {
	const query = `
		INSERT INTO users (id, wallet, total_earnings_as_creator, markets_created, created_at, updated_at)
		VALUES ($1, $2, 0, 1, NOW(), NOW())
		ON CONFLICT (wallet) DO UPDATE SET
			markets_created = users.markets_created + 1,
			updated_at = NOW()`

	if _, err := s.q.Exec(ctx, query, uuid.NewString(), wallet); err != nil {
		return fmt.Errorf("postgres: increment markets created %s: %w", wallet, err)
	}
	return nil
}

// Leaderboard ranks creators by lifetime earnings.
func (s *UserStore) Leaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY total_earnings_as_creator DESC, wallet LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: creator leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate users: %w", err)
	}
	return out, nil
}
