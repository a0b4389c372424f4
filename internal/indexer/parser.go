package indexer

import (
	"fmt"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// minAccounts is how many accounts the program's trade instructions carry:
// wallet, market, mint, escrow, user token account, system accounts.
const minAccounts = 6

// programAccounts finds the exchange program's instruction in the event and
// extracts the trading wallet and market address from its account list.
func programAccounts(ev domain.ChainEvent, programID string) (wallet, marketAddr string, err error) {
	for _, ins := range ev.Instructions {
		if ins.ProgramID != programID {
			continue
		}
		if len(ins.Accounts) < minAccounts {
			return "", "", fmt.Errorf("%w: instruction has %d accounts", domain.ErrMalformedEvent, len(ins.Accounts))
		}
		if ins.Accounts[0] == "" || ins.Accounts[1] == "" {
			return "", "", fmt.Errorf("%w: empty wallet or market account", domain.ErrMalformedEvent)
		}
		return ins.Accounts[0], ins.Accounts[1], nil
	}
	return "", "", fmt.Errorf("%w: no instruction from program", domain.ErrMalformedEvent)
}

// isCreationEvent reports whether the event's only token movement on the
// market mint is on the escrow side. The creation instruction mints the full
// supply straight to escrow; any non-escrow account touching the mint means
// a trade, not a creation.
func isCreationEvent(ev domain.ChainEvent, market domain.Market) bool {
	escrowOnly := false
	for _, b := range ev.PreTokenBalances {
		if b.Mint != market.Mint {
			continue
		}
		if b.Owner != market.Escrow {
			return false
		}
		escrowOnly = true
	}
	for _, b := range ev.PostTokenBalances {
		if b.Mint != market.Mint {
			continue
		}
		if b.Owner != market.Escrow {
			return false
		}
		escrowOnly = true
	}
	return escrowOnly
}

// parseTrade derives the trade direction and token amount from the event's
// balance deltas on the market mint. The wallet's own token account is
// authoritative: a balance increase is a buy, a decrease is a sell. When only
// the escrow side of the move is visible the sign flips, since escrow gains
// exactly what the wallet sold.
func parseTrade(ev domain.ChainEvent, market domain.Market, wallet string) (domain.TradeType, int64, error) {
	preByIndex := make(map[int]int64, len(ev.PreTokenBalances))
	for _, pre := range ev.PreTokenBalances {
		if pre.Mint == market.Mint {
			preByIndex[pre.AccountIndex] = pre.Amount
		}
	}

	var walletDiff, escrowDiff int64
	var walletSeen, escrowSeen bool
	for _, post := range ev.PostTokenBalances {
		if post.Mint != market.Mint {
			continue
		}
		diff := post.Amount - preByIndex[post.AccountIndex]
		delete(preByIndex, post.AccountIndex)
		switch post.Owner {
		case wallet:
			walletDiff, walletSeen = diff, true
		case market.Escrow:
			escrowDiff, escrowSeen = diff, true
		}
	}

	// A token account closed by a full exit appears only on the pre side.
	if !walletSeen {
		for _, pre := range ev.PreTokenBalances {
			if pre.Mint == market.Mint && pre.Owner == wallet {
				if _, missing := preByIndex[pre.AccountIndex]; missing {
					walletDiff, walletSeen = -pre.Amount, true
				}
			}
		}
	}

	diff := walletDiff
	if !walletSeen {
		if !escrowSeen {
			return "", 0, fmt.Errorf("%w: no balance change on mint %s", domain.ErrMalformedEvent, market.Mint)
		}
		diff = -escrowDiff
	}

	switch {
	case diff > 0:
		return domain.TradeTypeBuy, diff, nil
	case diff < 0:
		return domain.TradeTypeSell, -diff, nil
	default:
		return "", 0, fmt.Errorf("%w: zero amount on mint %s", domain.ErrMalformedEvent, market.Mint)
	}
}
