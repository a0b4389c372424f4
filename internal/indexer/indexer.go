// Package indexer tails the exchange program's signature list and feeds
// confirmed events into the settlement engine. It is the at-least-once path:
// the same signature can arrive here and through the API confirm endpoint in
// either order, and the engine's idempotency makes both orders converge.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/domain"
	"github.com/alanyoungcy/curvemarket/internal/engine"
)

const (
	defaultPollInterval  = 10 * time.Second
	defaultErrorInterval = 20 * time.Second
	defaultBatchSize     = 50

	// Consecutive failed polls before the alerter is paged.
	alertThreshold = 5

	// Gap between per-event RPC fetches so a full batch stays under the
	// provider's rate limit.
	eventDelay = 100 * time.Millisecond
)

// Config tunes the polling loop. Zero values take the defaults above.
type Config struct {
	ProgramID     string
	PollInterval  time.Duration
	ErrorInterval time.Duration
	BatchSize     int
}

// Indexer is the single polling worker. One instance per program; it owns a
// session-local seen set so a signature is fully processed at most once per
// run, with the transaction log as the durable dedupe across restarts.
type Indexer struct {
	chain  domain.ChainClient
	store  domain.Store
	engine *engine.Engine
	alerts engine.Alerter
	cfg    Config
	logger *slog.Logger

	seen        map[string]struct{}
	failedPolls int
}

// New creates an indexer. alerts may be nil.
func New(chain domain.ChainClient, store domain.Store, eng *engine.Engine, alerts engine.Alerter, cfg Config, logger *slog.Logger) *Indexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorInterval <= 0 {
		cfg.ErrorInterval = defaultErrorInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Indexer{
		chain:  chain,
		store:  store,
		engine: eng,
		alerts: alerts,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "indexer")),
		seen:   make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled. A clean poll schedules the next one after
// PollInterval; a failed poll backs off to ErrorInterval and, past the alert
// threshold, pages the alerter. Errors never stop the loop.
func (i *Indexer) Run(ctx context.Context) error {
	i.logger.Info("indexer started",
		slog.String("program_id", i.cfg.ProgramID),
		slog.Duration("poll_interval", i.cfg.PollInterval),
	)
	defer i.logger.Info("indexer stopped")

	for {
		interval := i.cfg.PollInterval
		if err := i.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			interval = i.cfg.ErrorInterval
			i.failedPolls++
			i.logger.Error("poll failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", i.failedPolls),
			)
			if i.failedPolls == alertThreshold && i.alerts != nil {
				if alertErr := i.alerts.Notify(ctx, "indexer_stalled", "Indexer stalled",
					fmt.Sprintf("%d consecutive poll failures, last: %v", i.failedPolls, err),
				); alertErr != nil {
					i.logger.Warn("alert delivery failed", slog.String("error", alertErr.Error()))
				}
			}
		} else {
			i.failedPolls = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// poll fetches one batch of signatures, newest first, and settles every event
// not yet known. Event-level problems skip that event only; a signature-list
// failure fails the whole poll.
func (i *Indexer) poll(ctx context.Context) error {
	sigs, err := i.chain.ListSignatures(ctx, i.cfg.ProgramID, i.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list signatures: %w", err)
	}
	i.logger.Debug("signatures fetched", slog.Int("count", len(sigs)))

	for _, info := range sigs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := i.seen[info.Signature]; ok {
			continue
		}

		exists, err := i.store.Transactions().Exists(ctx, info.Signature)
		if err != nil {
			return fmt.Errorf("check signature %s: %w", info.Signature, err)
		}
		if exists {
			i.seen[info.Signature] = struct{}{}
			continue
		}

		if info.Failed {
			// Failed transactions settled nothing on-chain.
			i.seen[info.Signature] = struct{}{}
			continue
		}

		i.handle(ctx, info)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(eventDelay):
		}
	}
	return nil
}

// handle processes one new signature. Permanent problems (malformed events,
// economically invalid trades) mark the signature seen so it is not refetched;
// transient ones (chain unavailable, market not registered yet, store errors)
// leave it unseen for the next poll.
func (i *Indexer) handle(ctx context.Context, info domain.SignatureInfo) {
	ev, err := i.chain.GetEvent(ctx, info.Signature)
	if err != nil {
		i.logger.Warn("fetch event failed",
			slog.String("signature", info.Signature),
			slog.String("error", err.Error()),
		)
		return
	}
	if ev.Failed {
		i.seen[info.Signature] = struct{}{}
		return
	}

	blockTime := info.BlockTime
	if blockTime.IsZero() {
		blockTime = ev.BlockTime
	}
	if blockTime.IsZero() {
		blockTime = time.Now().UTC()
	}

	wallet, marketAddr, err := programAccounts(ev, i.cfg.ProgramID)
	if err != nil {
		i.logger.Debug("event skipped",
			slog.String("signature", info.Signature),
			slog.String("reason", err.Error()),
		)
		i.seen[info.Signature] = struct{}{}
		return
	}

	market, err := i.store.Markets().GetByAddress(ctx, marketAddr)
	if errors.Is(err, domain.ErrNotFound) {
		// The market may simply not be registered yet; keep the signature
		// unseen so a later poll picks it up after registration.
		i.logger.Warn("event for unregistered market",
			slog.String("signature", info.Signature),
			slog.String("market_address", marketAddr),
		)
		return
	}
	if err != nil {
		i.logger.Warn("load market failed",
			slog.String("signature", info.Signature),
			slog.String("error", err.Error()),
		)
		return
	}

	if market.Status == domain.MarketStatusPending {
		if !isCreationEvent(ev, market) {
			// A trade can land right after the on-chain creation and get
			// polled (newest first) before anything activates the market.
			// Leave it unseen; a later poll settles it once the creation
			// has gone through.
			i.logger.Warn("trade event on pending market deferred",
				slog.String("signature", info.Signature),
				slog.String("market_address", marketAddr),
			)
			return
		}
		_, err = i.engine.SettleMarketCreation(ctx, engine.CreateMarketRequest{
			Signature: info.Signature,
			MarketID:  market.ID,
			Wallet:    wallet,
			BlockTime: blockTime,
		})
		i.finish(info.Signature, err)
		return
	}

	tradeType, amount, err := parseTrade(ev, market, wallet)
	if err != nil {
		i.logger.Warn("event skipped",
			slog.String("signature", info.Signature),
			slog.String("reason", err.Error()),
		)
		i.seen[info.Signature] = struct{}{}
		return
	}

	_, err = i.engine.Settle(ctx, engine.SettleRequest{
		Signature: info.Signature,
		MarketID:  market.ID,
		Wallet:    wallet,
		Type:      tradeType,
		Amount:    amount,
		BlockTime: blockTime,
	})
	i.finish(info.Signature, err)
}

// finish classifies a settlement result: nil and economically-invalid
// outcomes are final, infrastructure errors are retried next poll.
func (i *Indexer) finish(signature string, err error) {
	if err == nil {
		i.seen[signature] = struct{}{}
		return
	}
	if errors.Is(err, domain.ErrInsufficientSupply) ||
		errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrMalformedEvent) {
		i.logger.Warn("event rejected",
			slog.String("signature", signature),
			slog.String("error", err.Error()),
		)
		i.seen[signature] = struct{}{}
		return
	}
	i.logger.Error("settlement failed",
		slog.String("signature", signature),
		slog.String("error", err.Error()),
	)
}
