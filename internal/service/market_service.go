// Package service exposes the application's read and confirm surfaces on top
// of the settlement engine and stores. Handlers and other transports call
// these services; nothing here talks to the chain directly.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/curvemarket/internal/curve"
	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// MarketService handles market registration and all market-centric reads.
type MarketService struct {
	store  domain.Store
	cache  domain.MarketCache
	prices domain.PriceCache
	logger *slog.Logger
}

// NewMarketService creates a MarketService. cache and prices may be nil, in
// which case every read goes straight to the store.
func NewMarketService(store domain.Store, cache domain.MarketCache, prices domain.PriceCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		store:  store,
		cache:  cache,
		prices: prices,
		logger: logger,
	}
}

// RegisterMarketParams describes a market whose creation transaction has
// been prepared client-side but not yet confirmed.
type RegisterMarketParams struct {
	Address     string
	Owner       string
	Mint        string
	Escrow      string
	Treasury    string
	TotalSupply int64
	Name        string
	Symbol      string
	Description string
	ImageURL    string
	MetadataURI string
}

// RegisterMarket records a pending market so both settlement paths can
// resolve events against it. The market activates when its creation
// transaction confirms.
func (s *MarketService) RegisterMarket(ctx context.Context, p RegisterMarketParams) (domain.Market, error) {
	if p.Address == "" || p.Owner == "" || p.Mint == "" {
		return domain.Market{}, fmt.Errorf("market_service: register: address, owner and mint are required")
	}
	if p.TotalSupply <= 0 {
		return domain.Market{}, fmt.Errorf("market_service: register %s: non-positive total supply %d", p.Address, p.TotalSupply)
	}

	now := time.Now().UTC()
	m := domain.Market{
		ID:           uuid.NewString(),
		Address:      p.Address,
		Owner:        p.Owner,
		Mint:         p.Mint,
		Escrow:       p.Escrow,
		Treasury:     p.Treasury,
		InitialPrice: curve.PriceAt(0),
		CurrentPrice: curve.PriceAt(0),
		TotalSupply:  p.TotalSupply,
		Name:         p.Name,
		Symbol:       p.Symbol,
		Description:  p.Description,
		ImageURL:     p.ImageURL,
		MetadataURI:  p.MetadataURI,
		Status:       domain.MarketStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Markets().Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: register %s: %w", p.Address, err)
	}

	s.logger.InfoContext(ctx, "market_service: market registered",
		slog.String("address", m.Address),
		slog.String("mint", m.Mint),
	)
	return m, nil
}

// GetByAddress retrieves a market by chain address, cache first.
func (s *MarketService) GetByAddress(ctx context.Context, address string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.GetByAddress(ctx, address); err == nil {
			return m, nil
		}
	}

	m, err := s.store.Markets().GetByAddress(ctx, address)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by address %q: %w", address, err)
	}
	s.backfillCache(ctx, m)
	return m, nil
}

// GetByMint retrieves a market through the mint index, cache first.
func (s *MarketService) GetByMint(ctx context.Context, mint string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.GetByMint(ctx, mint); err == nil {
			return m, nil
		}
	}

	m, err := s.store.Markets().GetByMint(ctx, mint)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by mint %q: %w", mint, err)
	}
	s.backfillCache(ctx, m)
	return m, nil
}

func (s *MarketService) backfillCache(ctx context.Context, m domain.Market) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("address", m.Address),
			slog.String("error", err.Error()),
		)
	}
}

// ListActive returns active markets newest first.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.store.Markets().ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// LatestPrice returns the most recently settled curve price for a market,
// preferring the price cache over a store read.
func (s *MarketService) LatestPrice(ctx context.Context, marketID string) (int64, time.Time, error) {
	if s.prices != nil {
		if price, ts, err := s.prices.GetPrice(ctx, marketID); err == nil {
			return price, ts, nil
		}
	}

	m, err := s.store.Markets().GetByID(ctx, marketID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("market_service: latest price %q: %w", marketID, err)
	}
	return m.CurrentPrice, m.UpdatedAt, nil
}

// PriceSeries returns up to limit history buckets for the market at the
// given resolution, oldest first.
func (s *MarketService) PriceSeries(ctx context.Context, marketID string, iv domain.Interval, limit int) ([]domain.PriceBucket, error) {
	series, err := s.store.Buckets().Series(ctx, marketID, iv, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: price series %q/%s: %w", marketID, iv, err)
	}
	return series, nil
}

// MarketStats is a market's rolling 24-hour trading summary.
type MarketStats struct {
	MarketID       string
	Volume24h      int64
	Trades24h      int64
	PriceChange24h int64 // lamports, current price minus the oldest price in the window
	HolderCount    int64
}

// Stats returns the market's 24-hour volume, trade count, price change, and
// live holder count.
func (s *MarketService) Stats(ctx context.Context, marketID string) (MarketStats, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)

	volume, trades, err := s.store.Transactions().Stats(ctx, marketID, since)
	if err != nil {
		return MarketStats{}, fmt.Errorf("market_service: stats %q: %w", marketID, err)
	}
	holders, err := s.store.Holders().CountByMarket(ctx, marketID)
	if err != nil {
		return MarketStats{}, fmt.Errorf("market_service: stats %q: %w", marketID, err)
	}
	m, err := s.store.Markets().GetByID(ctx, marketID)
	if err != nil {
		return MarketStats{}, fmt.Errorf("market_service: stats %q: %w", marketID, err)
	}

	var change int64
	series, err := s.store.Buckets().Series(ctx, marketID, domain.Interval1h, 24)
	if err != nil {
		return MarketStats{}, fmt.Errorf("market_service: stats %q: %w", marketID, err)
	}
	for _, b := range series {
		if b.BucketStart.Before(since) {
			continue
		}
		change = m.CurrentPrice - b.Price
		break
	}

	return MarketStats{
		MarketID:       marketID,
		Volume24h:      volume,
		Trades24h:      trades,
		PriceChange24h: change,
		HolderCount:    holders,
	}, nil
}

// TopHolders returns the market's largest live positions.
func (s *MarketService) TopHolders(ctx context.Context, marketID string, limit int) ([]domain.Holder, error) {
	holders, err := s.store.Holders().TopByBalance(ctx, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: top holders %q: %w", marketID, err)
	}
	return holders, nil
}

// TopMarkets ranks markets by 24-hour traded volume.
func (s *MarketService) TopMarkets(ctx context.Context, limit int) ([]domain.MarketVolume, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	top, err := s.store.Transactions().TopMarketsByVolume(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: top markets: %w", err)
	}
	return top, nil
}

// Portfolio is a wallet's cross-market view: live positions plus recent
// settled activity.
type Portfolio struct {
	Wallet    string
	Positions []domain.Holder
	Activity  []domain.Transaction
}

// GetPortfolio assembles a wallet's positions and its most recent settled
// transactions.
func (s *MarketService) GetPortfolio(ctx context.Context, wallet string, activityLimit int) (Portfolio, error) {
	positions, err := s.store.Holders().ListByWallet(ctx, wallet)
	if err != nil {
		return Portfolio{}, fmt.Errorf("market_service: portfolio %q: %w", wallet, err)
	}
	activity, err := s.store.Transactions().ListByWallet(ctx, wallet, domain.ListOpts{Limit: activityLimit})
	if err != nil {
		return Portfolio{}, fmt.Errorf("market_service: portfolio %q: %w", wallet, err)
	}

	return Portfolio{
		Wallet:    wallet,
		Positions: positions,
		Activity:  activity,
	}, nil
}

// CreatorLeaderboard ranks wallets by lifetime creator fee earnings.
func (s *MarketService) CreatorLeaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	users, err := s.store.Users().Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: creator leaderboard: %w", err)
	}
	return users, nil
}
