package domain

import "time"

// Interval is a fixed price-history bucket resolution.
type Interval string

const (
	Interval1m Interval = "1m"
	Interval5m Interval = "5m"
	Interval1h Interval = "1h"
	Interval1d Interval = "1d"
)

// Intervals lists every bucket resolution a trade is rolled into.
var Intervals = []Interval{Interval1m, Interval5m, Interval1h, Interval1d}

// BucketStart returns the aligned bucket start for ts at this resolution.
// Minute/hour buckets are fixed-size floors; the daily bucket is the UTC
// calendar-day start, not a 86400s floor.
func (iv Interval) BucketStart(ts time.Time) time.Time {
	ts = ts.UTC()
	switch iv {
	case Interval1m:
		return ts.Truncate(time.Minute)
	case Interval5m:
		return ts.Truncate(5 * time.Minute)
	case Interval1h:
		return ts.Truncate(time.Hour)
	case Interval1d:
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	default:
		return ts
	}
}

// PriceBucket is one time-aggregated price/volume summary for a market.
// Rows are keyed (MarketID, BucketStart, Interval), created on the first
// trade in the bucket and incremented thereafter; never deleted from the
// primary store (the archiver copies aged rows to cold storage).
//
// Price holds the most recent trade price in the bucket. LastTradeTime is
// the max block time applied so far: replayed or backfilled events older
// than it accumulate volume but do not overwrite Price.
type PriceBucket struct {
	MarketID      string
	BucketStart   time.Time
	Interval      Interval
	Price         int64
	Volume        int64 // token units traded in the bucket
	Trades        int64
	LastTradeTime time.Time
}
