package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	// MarketStatusPending is assigned when a creation transaction has been
	// prepared but not yet confirmed on-chain.
	MarketStatusPending MarketStatus = "pending"
	// MarketStatusActive is assigned once the creation transaction confirms.
	MarketStatusActive MarketStatus = "active"
)

// Market mirrors one bonding-curve market account from the exchange program.
// The authoritative price/supply state lives on-chain; this row is the local
// mirror kept consistent by the settlement engine. After every settlement
// CurrentPrice equals the curve price at CirculatingSupply.
type Market struct {
	ID       string // internal row ID (uuid)
	Address  string // market account pubkey, unique
	Owner    string // creator wallet, receives the creator fee share
	Mint     string // SPL mint pubkey
	Escrow   string // escrow token account pubkey
	Treasury string // treasury PDA pubkey

	InitialPrice      int64 // lamports per token at creation
	CurrentPrice      int64 // lamports per token at CirculatingSupply
	CirculatingSupply int64 // curve-issued units held outside escrow
	TotalSupply       int64 // units minted to escrow at creation
	TradeCount        int64
	TotalPlatformFees int64 // lamports, accumulator
	TotalCreatorFees  int64 // lamports, accumulator

	Name        string
	Symbol      string
	Description string
	ImageURL    string
	MetadataURI string

	Status    MarketStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
