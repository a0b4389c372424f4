package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market mirror lookups keyed by chain address,
// with a secondary mint index for the indexer's balance matching.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	GetByAddress(ctx context.Context, address string) (Market, error)
	GetByMint(ctx context.Context, mint string) (Market, error)
	Invalidate(ctx context.Context, address string) error
}

// PriceCache stores the latest settled curve price per market.
type PriceCache interface {
	SetPrice(ctx context.Context, marketID string, price int64, ts time.Time) error
	GetPrice(ctx context.Context, marketID string) (int64, time.Time, error)
}

// LockManager provides distributed locking, used to keep background jobs
// single-flight across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
