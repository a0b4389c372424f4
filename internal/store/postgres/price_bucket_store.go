package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// PriceBucketStore implements domain.PriceBucketStore using PostgreSQL.
type PriceBucketStore struct {
	q querier
}

const bucketCols = `market_id, bucket_interval, bucket_start, price, volume, trades, last_trade_time`

func scanBucket(row pgx.Row) (domain.PriceBucket, error) {
	var b domain.PriceBucket
	var iv string
	err := row.Scan(
		&b.MarketID, &iv, &b.BucketStart, &b.Price, &b.Volume, &b.Trades, &b.LastTradeTime,
	)
	if err != nil {
		return domain.PriceBucket{}, err
	}
	b.Interval = domain.Interval(iv)
	return b, nil
}

// Record upserts one trade into its bucket. Volume and trade count always
// accumulate; the price only moves forward, guarded by last_trade_time, so a
// replayed event with an older block time cannot rewind it.
func (s *PriceBucketStore) Record(ctx context.Context, marketID string, iv domain.Interval, bucketStart time.Time, price, volume int64, tradeTime time.Time) error {
	const query = `
		INSERT INTO price_buckets (
			market_id, bucket_interval, bucket_start, price, volume, trades, last_trade_time
		) VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (market_id, bucket_interval, bucket_start) DO UPDATE SET
			volume = price_buckets.volume + EXCLUDED.volume,
			trades = price_buckets.trades + 1,
			price = CASE
				WHEN EXCLUDED.last_trade_time >= price_buckets.last_trade_time
				THEN EXCLUDED.price
				ELSE price_buckets.price
			END,
			last_trade_time = GREATEST(price_buckets.last_trade_time, EXCLUDED.last_trade_time)`

	_, err := s.q.Exec(ctx, query,
		marketID, string(iv), bucketStart.UTC(), price, volume, tradeTime.UTC())
	if err != nil {
		return fmt.Errorf("postgres: record %s bucket for %s: %w", iv, marketID, err)
	}
	return nil
}

// Series returns the most recent limit buckets, ordered oldest to newest.
func (s *PriceBucketStore) Series(ctx context.Context, marketID string, iv domain.Interval, limit int) ([]domain.PriceBucket, error) {
	const query = `
		SELECT ` + bucketCols + ` FROM (
			SELECT ` + bucketCols + `
			FROM price_buckets
			WHERE market_id = $1 AND bucket_interval = $2
			ORDER BY bucket_start DESC
			LIMIT $3
		) latest
		ORDER BY bucket_start`

	rows, err := s.q.Query(ctx, query, marketID, string(iv), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: bucket series %s/%s: %w", marketID, iv, err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

// ListBefore returns buckets starting before the cutoff, oldest first. The
// archiver drains these into cold storage.
func (s *PriceBucketStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PriceBucket, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+bucketCols+` FROM price_buckets WHERE bucket_start < $1 ORDER BY bucket_start`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list buckets before %s: %w", before, err)
	}
	defer rows.Close()
	return collectBuckets(rows)
}

func collectBuckets(rows pgx.Rows) ([]domain.PriceBucket, error) {
	var out []domain.PriceBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate buckets: %w", err)
	}
	return out, nil
}
