package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/curve"
	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// SettleRequest describes one confirmed buy or sell to settle. Both settlement
// paths (indexer and API confirm) build the same request; Signature is the
// idempotency key.
type SettleRequest struct {
	Signature string
	MarketID  string
	Wallet    string
	Type      domain.TradeType
	Amount    int64
	BlockTime time.Time
}

func (r SettleRequest) validate() error {
	if r.Signature == "" {
		return fmt.Errorf("%w: empty signature", domain.ErrMalformedEvent)
	}
	if r.MarketID == "" {
		return fmt.Errorf("%w: empty market id", domain.ErrMalformedEvent)
	}
	if r.Wallet == "" {
		return fmt.Errorf("%w: empty wallet", domain.ErrMalformedEvent)
	}
	if r.Type != domain.TradeTypeBuy && r.Type != domain.TradeTypeSell {
		return fmt.Errorf("%w: trade type %q", domain.ErrMalformedEvent, r.Type)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: non-positive amount %d", domain.ErrMalformedEvent, r.Amount)
	}
	return nil
}

// Settle applies one confirmed trade. The whole settlement (transaction log,
// market mirror, holder ledger, price history, creator earnings) commits or
// rolls back as one unit. Settling an already-settled signature is a success
// no-op that returns the stored row unchanged.
func (e *Engine) Settle(ctx context.Context, req SettleRequest) (domain.Transaction, error) {
	if err := req.validate(); err != nil {
		return domain.Transaction{}, err
	}

	var out domain.Transaction
	err := e.store.WithTx(ctx, func(tx domain.Store) error {
		if err := tx.LockMarket(ctx, req.MarketID); err != nil {
			return fmt.Errorf("lock market %s: %w", req.MarketID, err)
		}

		// Duplicate check under the lock: the signature may have been
		// settled by the other path between our caller's read and now.
		existing, err := tx.Transactions().GetBySignature(ctx, req.Signature)
		if err == nil {
			e.logger.Debug("signature already settled",
				slog.String("signature", req.Signature),
				slog.String("market_id", req.MarketID),
			)
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("lookup signature: %w", err)
		}

		m, err := tx.Markets().GetByID(ctx, req.MarketID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("market %s: %w", req.MarketID, domain.ErrUnknownMarket)
		}
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}

		var holder domain.Holder
		var newSupply, totalValue int64
		switch req.Type {
		case domain.TradeTypeBuy:
			newSupply = m.CirculatingSupply + req.Amount
			if newSupply > m.TotalSupply {
				return fmt.Errorf("buy %d with %d available: %w",
					req.Amount, m.TotalSupply-m.CirculatingSupply, domain.ErrInsufficientSupply)
			}
			totalValue = curve.BuyCost(m.CirculatingSupply, newSupply)

		case domain.TradeTypeSell:
			holder, err = tx.Holders().Get(ctx, req.MarketID, req.Wallet)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("sell %d with no position: %w", req.Amount, domain.ErrInsufficientBalance)
			}
			if err != nil {
				return fmt.Errorf("load holder: %w", err)
			}
			if req.Amount > holder.Balance {
				return fmt.Errorf("sell %d with balance %d: %w",
					req.Amount, holder.Balance, domain.ErrInsufficientBalance)
			}
			newSupply = m.CirculatingSupply - req.Amount
			if newSupply < 0 {
				// A holder balance above circulating supply means the
				// mirror is corrupt, not that the request is bad.
				e.alert(ctx, "invariant_violation", "Settlement invariant violated",
					fmt.Sprintf("market %s: sell of %d exceeds circulating supply %d (signature %s)",
						m.Address, req.Amount, m.CirculatingSupply, req.Signature))
				return fmt.Errorf("circulating supply would go negative: %w", domain.ErrInvariantViolation)
			}
			totalValue = curve.SellValue(m.CirculatingSupply, newSupply)
		}

		pricePerToken := curve.PriceAt(newSupply)
		platformFee, creatorFee, totalFee := curve.SplitFee(totalValue)
		now := time.Now().UTC()

		t := domain.Transaction{
			Signature:     req.Signature,
			MarketID:      m.ID,
			Type:          req.Type,
			Wallet:        req.Wallet,
			Amount:        req.Amount,
			PricePerToken: pricePerToken,
			TotalValue:    totalValue,
			PlatformFee:   platformFee,
			CreatorFee:    creatorFee,
			TotalFee:      totalFee,
			Status:        domain.TxStatusConfirmed,
			BlockTime:     req.BlockTime.UTC(),
			CreatedAt:     now,
		}
		stored, created, err := tx.Transactions().Insert(ctx, t)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !created {
			out = stored
			return nil
		}

		m.CirculatingSupply = newSupply
		m.CurrentPrice = pricePerToken
		m.TradeCount++
		m.TotalPlatformFees += platformFee
		m.TotalCreatorFees += creatorFee
		m.UpdatedAt = now
		if err := tx.Markets().Update(ctx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}

		switch req.Type {
		case domain.TradeTypeBuy:
			err = applyBuy(ctx, tx.Holders(), m.ID, req.Wallet, req.Amount, pricePerToken, req.BlockTime.UTC())
		case domain.TradeTypeSell:
			err = applySell(ctx, tx.Holders(), holder, req.Amount, pricePerToken, req.BlockTime.UTC())
		}
		if err != nil {
			return fmt.Errorf("apply holder: %w", err)
		}

		if err := recordHistory(ctx, tx.Buckets(), m.ID, pricePerToken, req.Amount, req.BlockTime.UTC()); err != nil {
			return err
		}

		if creatorFee > 0 {
			if err := tx.Users().AddCreatorEarnings(ctx, m.Owner, creatorFee); err != nil {
				return fmt.Errorf("credit creator earnings: %w", err)
			}
		}

		out = stored
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	e.logger.Info("trade settled",
		slog.String("signature", out.Signature),
		slog.String("market_id", out.MarketID),
		slog.String("type", string(out.Type)),
		slog.Int64("amount", out.Amount),
		slog.Int64("total_value", out.TotalValue),
	)
	return out, nil
}

// CreateMarketRequest describes a confirmed market-creation transaction.
type CreateMarketRequest struct {
	Signature string
	MarketID  string
	Wallet    string // creator wallet paying the creation fee
	BlockTime time.Time
}

// SettleMarketCreation activates a pending market once its creation
// transaction confirms. The flat creation fee is recorded entirely as
// platform fee; no tokens move, so no holder or price-history rows are
// touched. Idempotent on signature like Settle.
func (e *Engine) SettleMarketCreation(ctx context.Context, req CreateMarketRequest) (domain.Transaction, error) {
	if req.Signature == "" || req.MarketID == "" || req.Wallet == "" {
		return domain.Transaction{}, fmt.Errorf("%w: incomplete creation request", domain.ErrMalformedEvent)
	}

	var out domain.Transaction
	err := e.store.WithTx(ctx, func(tx domain.Store) error {
		if err := tx.LockMarket(ctx, req.MarketID); err != nil {
			return fmt.Errorf("lock market %s: %w", req.MarketID, err)
		}

		existing, err := tx.Transactions().GetBySignature(ctx, req.Signature)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("lookup signature: %w", err)
		}

		m, err := tx.Markets().GetByID(ctx, req.MarketID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("market %s: %w", req.MarketID, domain.ErrUnknownMarket)
		}
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}

		now := time.Now().UTC()
		t := domain.Transaction{
			Signature:     req.Signature,
			MarketID:      m.ID,
			Type:          domain.TradeTypeCreateMarket,
			Wallet:        req.Wallet,
			Amount:        0,
			PricePerToken: curve.PriceAt(0),
			TotalValue:    0,
			PlatformFee:   curve.CreationFee,
			CreatorFee:    0,
			TotalFee:      curve.CreationFee,
			Status:        domain.TxStatusConfirmed,
			BlockTime:     req.BlockTime.UTC(),
			CreatedAt:     now,
		}
		stored, created, err := tx.Transactions().Insert(ctx, t)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !created {
			out = stored
			return nil
		}

		m.Status = domain.MarketStatusActive
		m.CurrentPrice = curve.PriceAt(m.CirculatingSupply)
		if m.InitialPrice == 0 {
			m.InitialPrice = curve.PriceAt(0)
		}
		m.TotalPlatformFees += curve.CreationFee
		m.UpdatedAt = now
		if err := tx.Markets().Update(ctx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}

		if err := tx.Users().IncrementMarketsCreated(ctx, req.Wallet); err != nil {
			return fmt.Errorf("increment markets created: %w", err)
		}

		out = stored
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	e.logger.Info("market creation settled",
		slog.String("signature", out.Signature),
		slog.String("market_id", out.MarketID),
	)
	return out, nil
}

// Quote is a priced preview of a trade against current market state. It
// carries no reservation: the chain settles at whatever the supply is when
// the transaction lands.
type Quote struct {
	Type          domain.TradeType
	Amount        int64
	TotalValue    int64 // curve integral over the traded range, lamports
	PlatformFee   int64
	CreatorFee    int64
	TotalFee      int64
	PricePerToken int64 // curve price at the post-trade supply
	NewSupply     int64
}

// QuoteTrade prices a prospective buy or sell read-only. Over-supply buys and
// over-sized sells are rejected with the same errors a settlement would
// produce, except that sells are bounded by circulating supply rather than
// any one holder's balance.
func (e *Engine) QuoteTrade(ctx context.Context, marketID string, tradeType domain.TradeType, amount int64) (Quote, error) {
	if amount <= 0 {
		return Quote{}, fmt.Errorf("%w: non-positive amount %d", domain.ErrMalformedEvent, amount)
	}

	m, err := e.store.Markets().GetByID(ctx, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return Quote{}, fmt.Errorf("market %s: %w", marketID, domain.ErrUnknownMarket)
	}
	if err != nil {
		return Quote{}, fmt.Errorf("load market: %w", err)
	}

	var newSupply, totalValue int64
	switch tradeType {
	case domain.TradeTypeBuy:
		newSupply = m.CirculatingSupply + amount
		if newSupply > m.TotalSupply {
			return Quote{}, fmt.Errorf("buy %d with %d available: %w",
				amount, m.TotalSupply-m.CirculatingSupply, domain.ErrInsufficientSupply)
		}
		totalValue = curve.BuyCost(m.CirculatingSupply, newSupply)
	case domain.TradeTypeSell:
		if amount > m.CirculatingSupply {
			return Quote{}, fmt.Errorf("sell %d with circulating supply %d: %w",
				amount, m.CirculatingSupply, domain.ErrInsufficientSupply)
		}
		newSupply = m.CirculatingSupply - amount
		totalValue = curve.SellValue(m.CirculatingSupply, newSupply)
	default:
		return Quote{}, fmt.Errorf("%w: trade type %q", domain.ErrMalformedEvent, tradeType)
	}

	platformFee, creatorFee, totalFee := curve.SplitFee(totalValue)
	return Quote{
		Type:          tradeType,
		Amount:        amount,
		TotalValue:    totalValue,
		PlatformFee:   platformFee,
		CreatorFee:    creatorFee,
		TotalFee:      totalFee,
		PricePerToken: curve.PriceAt(newSupply),
		NewSupply:     newSupply,
	}, nil
}
