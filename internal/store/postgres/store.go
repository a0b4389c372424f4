package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Every
// store runs its statements through it, so the same store code works both
// against the pool and inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL. The zero-pool form (returned
// inside WithTx) is bound to a single transaction.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// NewStore creates the root store backed by the client's connection pool.
func NewStore(client *Client) *Store {
	return &Store{pool: client.Pool(), q: client.Pool()}
}

func (s *Store) Markets() domain.MarketStore           { return &MarketStore{q: s.q} }
func (s *Store) Holders() domain.HolderStore           { return &HolderStore{q: s.q} }
func (s *Store) Transactions() domain.TransactionStore { return &TransactionStore{q: s.q} }
func (s *Store) Buckets() domain.PriceBucketStore      { return &PriceBucketStore{q: s.q} }
func (s *Store) Users() domain.UserStore               { return &UserStore{q: s.q} }

// WithTx runs fn against a transaction-bound Store view. The transaction
// commits only if fn returns nil; any error rolls everything back. Calling
// WithTx on a view that is already transactional reuses the open transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	view := &Store{q: tx}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("postgres: rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// LockMarket takes a transaction-scoped advisory lock on the market, blocking
// until any concurrent settlement of the same market commits or rolls back.
// The lock releases automatically with the transaction, so there is no unlock
// path to forget. Only valid inside WithTx.
func (s *Store) LockMarket(ctx context.Context, marketID string) error {
	if s.pool != nil {
		return fmt.Errorf("postgres: LockMarket outside a transaction")
	}
	if _, err := s.q.Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", marketID,
	); err != nil {
		return fmt.Errorf("postgres: advisory lock market %s: %w", marketID, err)
	}
	return nil
}

var _ domain.Store = (*Store)(nil)
