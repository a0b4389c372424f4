package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/curvemarket/internal/domain"
	"github.com/alanyoungcy/curvemarket/internal/engine"
)

const lamportsPerSol = 1_000_000_000

// TradeService is the API-side settlement path: a client that has watched
// its own transaction confirm calls Confirm* here instead of waiting for the
// indexer to find the signature. Both paths converge on the same engine, so
// whichever arrives second is a no-op.
type TradeService struct {
	store  domain.Store
	engine *engine.Engine
	chain  domain.ChainClient
	cache  domain.MarketCache
	prices domain.PriceCache
	logger *slog.Logger
}

// NewTradeService creates a TradeService. chain, cache, and prices may be
// nil; without a chain client, confirms trust the caller's report.
func NewTradeService(store domain.Store, eng *engine.Engine, chain domain.ChainClient, cache domain.MarketCache, prices domain.PriceCache, logger *slog.Logger) *TradeService {
	return &TradeService{
		store:  store,
		engine: eng,
		chain:  chain,
		cache:  cache,
		prices: prices,
		logger: logger,
	}
}

// verifyOnChain checks the reported signature against the chain and returns
// the authoritative block time. A transaction that failed on chain is never
// settled.
func (s *TradeService) verifyOnChain(ctx context.Context, signature string, reported time.Time) (time.Time, error) {
	if s.chain == nil {
		return reported, nil
	}
	ev, err := s.chain.GetEvent(ctx, signature)
	if err != nil {
		return time.Time{}, fmt.Errorf("verify %q: %w", signature, err)
	}
	if ev.Failed {
		return time.Time{}, fmt.Errorf("verify %q: transaction failed on chain: %w", signature, domain.ErrMalformedEvent)
	}
	if !ev.BlockTime.IsZero() {
		return ev.BlockTime, nil
	}
	return reported, nil
}

// ConfirmTradeParams identifies a confirmed buy or sell by its chain
// signature and market address.
type ConfirmTradeParams struct {
	Signature     string
	MarketAddress string
	Wallet        string
	Amount        int64
	BlockTime     time.Time
}

// ConfirmBuy settles a confirmed buy reported by the client.
func (s *TradeService) ConfirmBuy(ctx context.Context, p ConfirmTradeParams) (domain.Transaction, error) {
	return s.confirm(ctx, p, domain.TradeTypeBuy)
}

// ConfirmSell settles a confirmed sell reported by the client.
func (s *TradeService) ConfirmSell(ctx context.Context, p ConfirmTradeParams) (domain.Transaction, error) {
	return s.confirm(ctx, p, domain.TradeTypeSell)
}

func (s *TradeService) confirm(ctx context.Context, p ConfirmTradeParams, tradeType domain.TradeType) (domain.Transaction, error) {
	m, err := s.store.Markets().GetByAddress(ctx, p.MarketAddress)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade_service: confirm %s: market %q: %w", tradeType, p.MarketAddress, err)
	}

	blockTime, err := s.verifyOnChain(ctx, p.Signature, p.BlockTime)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade_service: confirm %s: %w", tradeType, err)
	}

	t, err := s.engine.Settle(ctx, engine.SettleRequest{
		Signature: p.Signature,
		MarketID:  m.ID,
		Wallet:    p.Wallet,
		Type:      tradeType,
		Amount:    p.Amount,
		BlockTime: blockTime,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade_service: confirm %s %q: %w", tradeType, p.Signature, err)
	}

	s.refreshCaches(ctx, m, t)
	return t, nil
}

// ConfirmMarketCreationParams identifies a confirmed market-creation
// transaction by its chain signature and market address.
type ConfirmMarketCreationParams struct {
	Signature     string
	MarketAddress string
	Wallet        string
	BlockTime     time.Time
}

// ConfirmMarketCreation activates a pending market whose creation transaction
// the client has watched confirm.
func (s *TradeService) ConfirmMarketCreation(ctx context.Context, p ConfirmMarketCreationParams) (domain.Transaction, error) {
	m, err := s.store.Markets().GetByAddress(ctx, p.MarketAddress)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade_service: confirm creation: market %q: %w", p.MarketAddress, err)
	}

	blockTime, err := s.verifyOnChain(ctx, p.Signature, p.BlockTime)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade_service: confirm creation: %w", err)
	}

	t, err := s.engine.SettleMarketCreation(ctx, engine.CreateMarketRequest{
		Signature: p.Signature,
		MarketID:  m.ID,
		Wallet:    p.Wallet,
		BlockTime: blockTime,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade_service: confirm creation %q: %w", p.Signature, err)
	}

	s.refreshCaches(ctx, m, t)
	return t, nil
}

// refreshCaches drops the stale market entry and publishes the settled price.
// Cache failures are logged and swallowed; the settlement already committed.
func (s *TradeService) refreshCaches(ctx context.Context, m domain.Market, t domain.Transaction) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.Address); err != nil {
			s.logger.WarnContext(ctx, "trade_service: cache invalidate failed",
				slog.String("address", m.Address),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.prices != nil && t.Type != domain.TradeTypeCreateMarket {
		if err := s.prices.SetPrice(ctx, m.ID, t.PricePerToken, t.BlockTime); err != nil {
			s.logger.WarnContext(ctx, "trade_service: price cache set failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// TradeQuote is a client-facing trade preview. Integer lamport amounts come
// straight from the engine; the SOL strings are display-only conversions and
// never feed back into settlement arithmetic.
type TradeQuote struct {
	Type          domain.TradeType
	Amount        int64
	TotalValue    int64
	PlatformFee   int64
	CreatorFee    int64
	TotalFee      int64
	PricePerToken int64
	NewSupply     int64

	TotalValueSOL    string
	TotalFeeSOL      string
	PricePerTokenSOL string
}

// Quote prices a prospective trade against a market resolved by address.
func (s *TradeService) Quote(ctx context.Context, marketAddress string, tradeType domain.TradeType, amount int64) (TradeQuote, error) {
	m, err := s.store.Markets().GetByAddress(ctx, marketAddress)
	if err != nil {
		return TradeQuote{}, fmt.Errorf("trade_service: quote: market %q: %w", marketAddress, err)
	}

	q, err := s.engine.QuoteTrade(ctx, m.ID, tradeType, amount)
	if err != nil {
		return TradeQuote{}, fmt.Errorf("trade_service: quote %s on %q: %w", tradeType, marketAddress, err)
	}

	return TradeQuote{
		Type:          q.Type,
		Amount:        q.Amount,
		TotalValue:    q.TotalValue,
		PlatformFee:   q.PlatformFee,
		CreatorFee:    q.CreatorFee,
		TotalFee:      q.TotalFee,
		PricePerToken: q.PricePerToken,
		NewSupply:     q.NewSupply,

		TotalValueSOL:    lamportsToSOL(q.TotalValue),
		TotalFeeSOL:      lamportsToSOL(q.TotalFee),
		PricePerTokenSOL: lamportsToSOL(q.PricePerToken),
	}, nil
}

func lamportsToSOL(lamports int64) string {
	return decimal.NewFromInt(lamports).Div(decimal.NewFromInt(lamportsPerSol)).String()
}

// History returns a market's settled transactions, newest first.
func (s *TradeService) History(ctx context.Context, marketAddress string, opts domain.ListOpts) ([]domain.Transaction, error) {
	m, err := s.store.Markets().GetByAddress(ctx, marketAddress)
	if err != nil {
		return nil, fmt.Errorf("trade_service: history: market %q: %w", marketAddress, err)
	}
	txs, err := s.store.Transactions().ListByMarket(ctx, m.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: history %q: %w", marketAddress, err)
	}
	return txs, nil
}

// WalletActivity returns a wallet's settled transactions across all markets,
// newest first.
func (s *TradeService) WalletActivity(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Transaction, error) {
	txs, err := s.store.Transactions().ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: wallet activity %q: %w", wallet, err)
	}
	return txs, nil
}
