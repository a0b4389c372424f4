package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateSignature  = errors.New("signature already settled")
	ErrInsufficientSupply  = errors.New("amount exceeds available supply")
	ErrInsufficientBalance = errors.New("amount exceeds holder balance")
	ErrUnknownMarket       = errors.New("market not known locally")
	ErrMalformedEvent      = errors.New("malformed chain event")
	ErrChainUnavailable    = errors.New("chain rpc unavailable")
	ErrInvariantViolation  = errors.New("settlement invariant violated")
	ErrLockHeld            = errors.New("lock already held")
)
