package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache with JSON-serialized markets and
// a secondary mint index. The cache is read-through only; the store stays
// authoritative and every settlement invalidates the entry.
//
// Key schema:
//
//	market:{address}    - JSON-encoded market
//	market:mint:{mint}  - string value of the market address
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(address string) string { return "market:" + address }
func marketMintKey(mint string) string { return "market:mint:" + mint }

// Set stores a market with a 5-minute TTL and indexes its mint.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Address, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, marketKey(market.Address), data, marketTTL)
	if market.Mint != "" {
		pipe.Set(ctx, marketMintKey(market.Mint), market.Address, marketTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Address, err)
	}
	return nil
}

// GetByAddress retrieves a market by its account address. It returns
// domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) GetByAddress(ctx context.Context, address string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", address, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", address, err)
	}
	return market, nil
}

// GetByMint looks up a market through the mint index.
func (mc *MarketCache) GetByMint(ctx context.Context, mint string) (domain.Market, error) {
	address, err := mc.rdb.Get(ctx, marketMintKey(mint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by mint %s: %w", mint, err)
	}
	return mc.GetByAddress(ctx, address)
}

// Invalidate removes a market and its mint index entry.
func (mc *MarketCache) Invalidate(ctx context.Context, address string) error {
	market, err := mc.GetByAddress(ctx, address)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate market %s: %w", address, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(address))
	if err == nil && market.Mint != "" {
		pipe.Del(ctx, marketMintKey(market.Mint))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", address, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
