package domain

import "time"

// Holder is one wallet's position in one market. A row exists only while the
// balance is positive: the first buy creates it, a sell that empties it
// deletes it. Invariant: Balance == TotalBought - TotalSold, never negative.
type Holder struct {
	ID       string
	MarketID string
	Wallet   string

	Balance         int64
	TotalBought     int64
	TotalSold       int64
	AverageBuyPrice int64 // weighted-average cost basis, lamports per token
	RealizedPnL     int64 // signed lamports, accumulated on sells

	FirstPurchase time.Time
	LastActivity  time.Time
}
