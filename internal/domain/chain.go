package domain

import (
	"context"
	"time"
)

// SignatureInfo is one entry from the ledger's per-address signature list.
type SignatureInfo struct {
	Signature string
	BlockTime time.Time
	Failed    bool
}

// Instruction is one decoded instruction of a chain event.
type Instruction struct {
	ProgramID string
	Accounts  []string
}

// TokenBalance is a token account balance observed before or after an event.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       int64
}

// ChainEvent is the decoded form of one remote transaction. The indexer only
// reads who moved how many tokens of which mint; all economics are recomputed
// locally.
type ChainEvent struct {
	Signature         string
	Failed            bool
	BlockTime         time.Time
	Instructions      []Instruction
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// ChainClient reads the remote ledger. Implementations are treated as
// unreliable and eventually consistent: every error is retryable and the
// same signature may be served more than once.
type ChainClient interface {
	ListSignatures(ctx context.Context, programID string, limit int) ([]SignatureInfo, error)
	GetEvent(ctx context.Context, signature string) (ChainEvent, error)
}
