package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// recordHistory rolls one trade into every bucket resolution. Volume and
// trade counts always accumulate; the store's Record guards the price field
// against out-of-order block times, so replaying old events never rewinds a
// chart.
func recordHistory(ctx context.Context, buckets domain.PriceBucketStore, marketID string, price, volume int64, tradeTime time.Time) error {
	for _, iv := range domain.Intervals {
		if err := buckets.Record(ctx, marketID, iv, iv.BucketStart(tradeTime), price, volume, tradeTime); err != nil {
			return fmt.Errorf("record %s bucket: %w", iv, err)
		}
	}
	return nil
}
