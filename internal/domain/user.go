package domain

import "time"

// User tracks per-wallet creator earnings. A row is created lazily the first
// time a wallet earns a creator fee or confirms a market creation.
type User struct {
	ID                     string
	Wallet                 string // unique
	TotalEarningsAsCreator int64  // lamports, accumulator
	MarketsCreated         int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
