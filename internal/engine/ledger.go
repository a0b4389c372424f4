package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// applyBuy credits a buy to the wallet's position. The first buy creates the
// row; later buys fold the trade into the weighted-average cost basis:
//
//	newAvg = floor((oldAvg*oldBalance + price*amount) / newBalance)
//
// The division floors, matching the program's u64 settlement math.
func applyBuy(ctx context.Context, holders domain.HolderStore, marketID, wallet string, amount, price int64, at time.Time) error {
	h, err := holders.Get(ctx, marketID, wallet)
	if errors.Is(err, domain.ErrNotFound) {
		return holders.Create(ctx, domain.Holder{
			ID:              uuid.NewString(),
			MarketID:        marketID,
			Wallet:          wallet,
			Balance:         amount,
			TotalBought:     amount,
			AverageBuyPrice: price,
			FirstPurchase:   at,
			LastActivity:    at,
		})
	}
	if err != nil {
		return fmt.Errorf("load holder: %w", err)
	}

	newBalance := h.Balance + amount
	h.AverageBuyPrice = (h.AverageBuyPrice*h.Balance + price*amount) / newBalance
	h.Balance = newBalance
	h.TotalBought += amount
	h.LastActivity = at
	return holders.Update(ctx, h)
}

// applySell debits a sell from an existing position. Realized PnL books the
// difference between the sell price and the average cost basis; the basis
// itself never changes on a sell. A sell that empties the position deletes
// the row, so holder counts only ever see live positions.
//
// The caller has already verified amount <= h.Balance under the market lock.
func applySell(ctx context.Context, holders domain.HolderStore, h domain.Holder, amount, price int64, at time.Time) error {
	h.RealizedPnL += (price - h.AverageBuyPrice) * amount
	h.TotalSold += amount
	h.Balance -= amount
	h.LastActivity = at

	if h.Balance == 0 {
		return holders.Delete(ctx, h.MarketID, h.Wallet)
	}
	return holders.Update(ctx, h)
}
