package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/curve"
	"github.com/alanyoungcy/curvemarket/internal/domain"
	"github.com/alanyoungcy/curvemarket/internal/engine"
	"github.com/alanyoungcy/curvemarket/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMarketCache counts hits so tests can tell cache reads from store reads.
type fakeMarketCache struct {
	byAddress   map[string]domain.Market
	byMint      map[string]domain.Market
	sets        int
	invalidates int
}

func newFakeMarketCache() *fakeMarketCache {
	return &fakeMarketCache{
		byAddress: make(map[string]domain.Market),
		byMint:    make(map[string]domain.Market),
	}
}

func (c *fakeMarketCache) Set(_ context.Context, m domain.Market) error {
	c.sets++
	c.byAddress[m.Address] = m
	c.byMint[m.Mint] = m
	return nil
}

func (c *fakeMarketCache) GetByAddress(_ context.Context, address string) (domain.Market, error) {
	m, ok := c.byAddress[address]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeMarketCache) GetByMint(_ context.Context, mint string) (domain.Market, error) {
	m, ok := c.byMint[mint]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeMarketCache) Invalidate(_ context.Context, address string) error {
	c.invalidates++
	m, ok := c.byAddress[address]
	if ok {
		delete(c.byAddress, address)
		delete(c.byMint, m.Mint)
	}
	return nil
}

type fakePriceCache struct {
	prices map[string]int64
	times  map[string]time.Time
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: make(map[string]int64), times: make(map[string]time.Time)}
}

func (c *fakePriceCache) SetPrice(_ context.Context, marketID string, price int64, ts time.Time) error {
	c.prices[marketID] = price
	c.times[marketID] = ts
	return nil
}

func (c *fakePriceCache) GetPrice(_ context.Context, marketID string) (int64, time.Time, error) {
	p, ok := c.prices[marketID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, c.times[marketID], nil
}

func registerTestMarket(t *testing.T, markets *MarketService) domain.Market {
	t.Helper()
	m, err := markets.RegisterMarket(context.Background(), RegisterMarketParams{
		Address:     "MktAddr1111111111111111111111111111111111111",
		Owner:       "Creator111111111111111111111111111111111111",
		Mint:        "Mint11111111111111111111111111111111111111",
		Escrow:      "Escrow1111111111111111111111111111111111111",
		Treasury:    "Treasury111111111111111111111111111111111111",
		TotalSupply: 1_000_000,
		Name:        "Test Market",
		Symbol:      "TEST",
	})
	if err != nil {
		t.Fatalf("RegisterMarket: %v", err)
	}
	return m
}

func TestRegisterMarketPending(t *testing.T) {
	store := memory.New()
	markets := NewMarketService(store, nil, nil, testLogger())

	m := registerTestMarket(t, markets)

	if m.Status != domain.MarketStatusPending {
		t.Fatalf("status = %q, want pending", m.Status)
	}
	if m.CurrentPrice != curve.BasePrice {
		t.Fatalf("current price = %d, want base price %d", m.CurrentPrice, curve.BasePrice)
	}
	if m.ID == "" {
		t.Fatal("market ID not assigned")
	}
	if _, err := store.Markets().GetByAddress(context.Background(), m.Address); err != nil {
		t.Fatalf("registered market not in store: %v", err)
	}
}

func TestRegisterMarketValidation(t *testing.T) {
	markets := NewMarketService(memory.New(), nil, nil, testLogger())

	if _, err := markets.RegisterMarket(context.Background(), RegisterMarketParams{
		Owner: "w", Mint: "m", TotalSupply: 100,
	}); err == nil {
		t.Fatal("expected error for missing address")
	}
	if _, err := markets.RegisterMarket(context.Background(), RegisterMarketParams{
		Address: "a", Owner: "w", Mint: "m", TotalSupply: 0,
	}); err == nil {
		t.Fatal("expected error for zero total supply")
	}
}

func TestGetByAddressBackfillsCache(t *testing.T) {
	store := memory.New()
	cache := newFakeMarketCache()
	markets := NewMarketService(store, cache, nil, testLogger())
	m := registerTestMarket(t, markets)

	got, err := markets.GetByAddress(context.Background(), m.Address)
	if err != nil {
		t.Fatalf("GetByAddress: %v", err)
	}
	if got.ID != m.ID {
		t.Fatalf("market ID = %q, want %q", got.ID, m.ID)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}

	// Second read must come from the cache.
	if _, err := markets.GetByAddress(context.Background(), m.Address); err != nil {
		t.Fatalf("cached GetByAddress: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets after cached read = %d, want 1", cache.sets)
	}

	if _, err := markets.GetByMint(context.Background(), m.Mint); err != nil {
		t.Fatalf("GetByMint: %v", err)
	}
}

func TestConfirmBuyInvalidatesCacheAndPublishesPrice(t *testing.T) {
	store := memory.New()
	cache := newFakeMarketCache()
	prices := newFakePriceCache()
	eng := engine.New(store, nil, testLogger())
	markets := NewMarketService(store, cache, prices, testLogger())
	trades := NewTradeService(store, eng, nil, cache, prices, testLogger())
	ctx := context.Background()

	m := registerTestMarket(t, markets)
	if _, err := trades.ConfirmMarketCreation(ctx, ConfirmMarketCreationParams{
		Signature:     "sig-create",
		MarketAddress: m.Address,
		Wallet:        m.Owner,
		BlockTime:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ConfirmMarketCreation: %v", err)
	}

	tx, err := trades.ConfirmBuy(ctx, ConfirmTradeParams{
		Signature:     "sig-buy-1",
		MarketAddress: m.Address,
		Wallet:        "Buyer1111111111111111111111111111111111111",
		Amount:        500,
		BlockTime:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("ConfirmBuy: %v", err)
	}
	if tx.Type != domain.TradeTypeBuy {
		t.Fatalf("settled type = %q, want BUY", tx.Type)
	}
	if cache.invalidates < 1 {
		t.Fatal("market cache was not invalidated after settlement")
	}
	price, _, err := prices.GetPrice(ctx, m.ID)
	if err != nil {
		t.Fatalf("price cache after buy: %v", err)
	}
	if price != tx.PricePerToken {
		t.Fatalf("cached price = %d, want %d", price, tx.PricePerToken)
	}

	// LatestPrice should serve the cached value.
	latest, _, err := markets.LatestPrice(ctx, m.ID)
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if latest != tx.PricePerToken {
		t.Fatalf("latest price = %d, want %d", latest, tx.PricePerToken)
	}
}

func TestConfirmSellRoundTrip(t *testing.T) {
	store := memory.New()
	eng := engine.New(store, nil, testLogger())
	markets := NewMarketService(store, nil, nil, testLogger())
	trades := NewTradeService(store, eng, nil, nil, nil, testLogger())
	ctx := context.Background()
	wallet := "Trader111111111111111111111111111111111111"

	m := registerTestMarket(t, markets)
	if _, err := trades.ConfirmMarketCreation(ctx, ConfirmMarketCreationParams{
		Signature: "sig-create", MarketAddress: m.Address, Wallet: m.Owner, BlockTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ConfirmMarketCreation: %v", err)
	}
	if _, err := trades.ConfirmBuy(ctx, ConfirmTradeParams{
		Signature: "sig-buy", MarketAddress: m.Address, Wallet: wallet, Amount: 300, BlockTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ConfirmBuy: %v", err)
	}
	if _, err := trades.ConfirmSell(ctx, ConfirmTradeParams{
		Signature: "sig-sell", MarketAddress: m.Address, Wallet: wallet, Amount: 300, BlockTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ConfirmSell: %v", err)
	}

	updated, err := store.Markets().GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("reload market: %v", err)
	}
	if updated.CirculatingSupply != 0 {
		t.Fatalf("circulating supply = %d, want 0", updated.CirculatingSupply)
	}

	pf, err := markets.GetPortfolio(ctx, wallet, 10)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if len(pf.Positions) != 0 {
		t.Fatalf("positions after full exit = %d, want 0", len(pf.Positions))
	}
	if len(pf.Activity) != 2 {
		t.Fatalf("activity rows = %d, want 2", len(pf.Activity))
	}
}

// fakeChainVerifier serves canned events for the confirm verification path.
type fakeChainVerifier struct {
	events map[string]domain.ChainEvent
}

func (f *fakeChainVerifier) ListSignatures(_ context.Context, _ string, _ int) ([]domain.SignatureInfo, error) {
	return nil, nil
}

func (f *fakeChainVerifier) GetEvent(_ context.Context, signature string) (domain.ChainEvent, error) {
	ev, ok := f.events[signature]
	if !ok {
		return domain.ChainEvent{}, domain.ErrChainUnavailable
	}
	return ev, nil
}

func TestConfirmRejectsFailedChainTransaction(t *testing.T) {
	store := memory.New()
	eng := engine.New(store, nil, testLogger())
	markets := NewMarketService(store, nil, nil, testLogger())
	chain := &fakeChainVerifier{events: map[string]domain.ChainEvent{
		"sig-failed": {Signature: "sig-failed", Failed: true},
	}}
	trades := NewTradeService(store, eng, chain, nil, nil, testLogger())
	ctx := context.Background()

	m := registerTestMarket(t, markets)

	_, err := trades.ConfirmBuy(ctx, ConfirmTradeParams{
		Signature: "sig-failed", MarketAddress: m.Address, Wallet: "w", Amount: 10, BlockTime: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}

	// Unverifiable signatures are not settled either.
	_, err = trades.ConfirmBuy(ctx, ConfirmTradeParams{
		Signature: "sig-unknown", MarketAddress: m.Address, Wallet: "w", Amount: 10, BlockTime: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrChainUnavailable) {
		t.Fatalf("err = %v, want ErrChainUnavailable", err)
	}
}

func TestConfirmUnknownMarketAddress(t *testing.T) {
	store := memory.New()
	trades := NewTradeService(store, engine.New(store, nil, testLogger()), nil, nil, nil, testLogger())

	_, err := trades.ConfirmBuy(context.Background(), ConfirmTradeParams{
		Signature: "sig", MarketAddress: "nope", Wallet: "w", Amount: 1, BlockTime: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestQuoteSOLConversion(t *testing.T) {
	store := memory.New()
	eng := engine.New(store, nil, testLogger())
	markets := NewMarketService(store, nil, nil, testLogger())
	trades := NewTradeService(store, eng, nil, nil, nil, testLogger())
	ctx := context.Background()

	m := registerTestMarket(t, markets)

	q, err := trades.Quote(ctx, m.Address, domain.TradeTypeBuy, 1)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.TotalValue != curve.BasePrice {
		t.Fatalf("total value = %d, want %d", q.TotalValue, curve.BasePrice)
	}
	// 1_000_000 lamports is exactly 0.001 SOL.
	if q.TotalValueSOL != "0.001" {
		t.Fatalf("TotalValueSOL = %q, want \"0.001\"", q.TotalValueSOL)
	}
	if q.NewSupply != 1 {
		t.Fatalf("new supply = %d, want 1", q.NewSupply)
	}
}

func TestStatsAndHistory(t *testing.T) {
	store := memory.New()
	eng := engine.New(store, nil, testLogger())
	markets := NewMarketService(store, nil, nil, testLogger())
	trades := NewTradeService(store, eng, nil, nil, nil, testLogger())
	ctx := context.Background()

	m := registerTestMarket(t, markets)
	if _, err := trades.ConfirmMarketCreation(ctx, ConfirmMarketCreationParams{
		Signature: "sig-create", MarketAddress: m.Address, Wallet: m.Owner, BlockTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ConfirmMarketCreation: %v", err)
	}
	for i, amount := range []int64{100, 200} {
		if _, err := trades.ConfirmBuy(ctx, ConfirmTradeParams{
			Signature:     "sig-buy-" + string(rune('a'+i)),
			MarketAddress: m.Address,
			Wallet:        "Buyer1111111111111111111111111111111111111",
			Amount:        amount,
			BlockTime:     time.Now().UTC(),
		}); err != nil {
			t.Fatalf("ConfirmBuy %d: %v", i, err)
		}
	}

	stats, err := markets.Stats(ctx, m.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Trades24h != 2 {
		t.Fatalf("trades24h = %d, want 2", stats.Trades24h)
	}
	if stats.Volume24h <= 0 {
		t.Fatalf("volume24h = %d, want > 0", stats.Volume24h)
	}
	if stats.HolderCount != 1 {
		t.Fatalf("holder count = %d, want 1", stats.HolderCount)
	}

	hist, err := trades.History(ctx, m.Address, domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// Creation plus two buys.
	if len(hist) != 3 {
		t.Fatalf("history rows = %d, want 3", len(hist))
	}

	top, err := markets.TopMarkets(ctx, 5)
	if err != nil {
		t.Fatalf("TopMarkets: %v", err)
	}
	if len(top) != 1 || top[0].MarketID != m.ID {
		t.Fatalf("top markets = %+v, want one entry for %s", top, m.ID)
	}

	board, err := markets.CreatorLeaderboard(ctx, 5)
	if err != nil {
		t.Fatalf("CreatorLeaderboard: %v", err)
	}
	if len(board) == 0 {
		t.Fatal("creator leaderboard empty after fee-earning trades")
	}
}
