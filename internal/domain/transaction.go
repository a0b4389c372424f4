package domain

import "time"

// TradeType classifies a settled transaction.
type TradeType string

const (
	TradeTypeBuy          TradeType = "BUY"
	TradeTypeSell         TradeType = "SELL"
	TradeTypeCreateMarket TradeType = "CREATE_MARKET"
)

// TxStatus is the settlement status of a transaction row.
type TxStatus string

const (
	TxStatusConfirmed TxStatus = "CONFIRMED"
)

// Transaction is one settled ledger event. The chain signature is the
// idempotency key: a given signature produces at most one row ever, which is
// what makes both the polling indexer and the API confirm path safely
// retryable against each other.
type Transaction struct {
	ID        int64
	Signature string // unique
	MarketID  string
	Type      TradeType
	Wallet    string

	Amount        int64 // token units moved
	PricePerToken int64 // curve price at the post-trade supply, lamports
	TotalValue    int64 // curve integral over the traded range, lamports
	PlatformFee   int64
	CreatorFee    int64
	TotalFee      int64

	Status    TxStatus
	BlockTime time.Time
	CreatedAt time.Time
}
