// Package engine is the settlement core. It turns confirmed chain events into
// atomic mutations of the market mirror, holder ledger, transaction log, user
// earnings, and price history. Every settlement runs inside one store
// transaction under a per-market lock, keyed by the chain signature so that
// the polling indexer and the API confirm path can race each other safely.
package engine

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// Alerter receives out-of-band alerts for conditions that should page a
// human, such as settlement invariant violations. notify.Notifier satisfies
// it; a nil Alerter disables alerting.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Engine settles confirmed trades and market creations against the store.
// It is safe for concurrent use; serialization happens per market inside the
// store transaction, not in the engine.
type Engine struct {
	store  domain.Store
	alerts Alerter
	logger *slog.Logger
}

// New creates a settlement engine. alerts may be nil.
func New(store domain.Store, alerts Alerter, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		alerts: alerts,
		logger: logger.With(slog.String("component", "engine")),
	}
}

// alert sends a notification if an Alerter is configured. Delivery failures
// are logged and swallowed; alerting must never fail a settlement.
func (e *Engine) alert(ctx context.Context, event, title, message string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
