package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketVolume is an aggregate row used for volume rankings.
type MarketVolume struct {
	MarketID string
	Volume   int64
	Trades   int64
}

// MarketStore persists market mirrors.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByAddress(ctx context.Context, address string) (Market, error)
	GetByMint(ctx context.Context, mint string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// HolderStore persists per-(market, wallet) positions.
type HolderStore interface {
	Get(ctx context.Context, marketID, wallet string) (Holder, error)
	Create(ctx context.Context, h Holder) error
	Update(ctx context.Context, h Holder) error
	Delete(ctx context.Context, marketID, wallet string) error
	TopByBalance(ctx context.Context, marketID string, limit int) ([]Holder, error)
	CountByMarket(ctx context.Context, marketID string) (int64, error)
	ListByWallet(ctx context.Context, wallet string) ([]Holder, error)
}

// TransactionStore persists the append-only settlement log. Signature is a
// unique key; Insert must be idempotent under retries.
type TransactionStore interface {
	// Insert writes the transaction unless a row with the same signature
	// already exists. It returns the stored row and whether this call
	// created it.
	Insert(ctx context.Context, t Transaction) (Transaction, bool, error)
	Exists(ctx context.Context, signature string) (bool, error)
	GetBySignature(ctx context.Context, signature string) (Transaction, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Transaction, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Transaction, error)
	Stats(ctx context.Context, marketID string, since time.Time) (volume int64, trades int64, err error)
	TopMarketsByVolume(ctx context.Context, since time.Time, limit int) ([]MarketVolume, error)
	ListBefore(ctx context.Context, before time.Time) ([]Transaction, error)
}

// PriceBucketStore persists time-bucketed price history.
type PriceBucketStore interface {
	// Record upserts the bucket row for (marketID, interval, bucketStart):
	// on create it seeds price/volume/trades from the trade; on update it
	// accumulates volume and trades, and overwrites price only when
	// tradeTime is not older than the bucket's last applied trade.
	Record(ctx context.Context, marketID string, iv Interval, bucketStart time.Time, price, volume int64, tradeTime time.Time) error
	// Series returns up to limit buckets ordered oldest to newest.
	Series(ctx context.Context, marketID string, iv Interval, limit int) ([]PriceBucket, error)
	ListBefore(ctx context.Context, before time.Time) ([]PriceBucket, error)
}

// UserStore persists per-wallet creator earnings.
type UserStore interface {
	GetByWallet(ctx context.Context, wallet string) (User, error)
	// AddCreatorEarnings upserts the wallet's user row and increments its
	// creator-earnings accumulator.
	AddCreatorEarnings(ctx context.Context, wallet string, amount int64) error
	IncrementMarketsCreated(ctx context.Context, wallet string) error
	Leaderboard(ctx context.Context, limit int) ([]User, error)
}

// Store bundles the per-entity stores behind one handle and provides the
// transactional unit of work the settlement engine runs inside. The handle is
// injected explicitly (no package-level singleton) so tests can substitute
// the in-memory implementation.
type Store interface {
	Markets() MarketStore
	Holders() HolderStore
	Transactions() TransactionStore
	Buckets() PriceBucketStore
	Users() UserStore

	// WithTx runs fn against a Store view whose mutations commit or roll
	// back as one atomic unit.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// LockMarket serializes settlements on one market until the enclosing
	// transaction ends. Must be called on the Store view passed to a
	// WithTx callback.
	LockMarket(ctx context.Context, marketID string) error
}
