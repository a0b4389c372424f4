package app

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/curvemarket/internal/indexer"
	"github.com/alanyoungcy/curvemarket/internal/pipeline"
)

// buildIndexer constructs the polling indexer from config and wired deps.
func (a *App) buildIndexer(deps *Dependencies) (*indexer.Indexer, error) {
	if deps.Chain == nil {
		return nil, fmt.Errorf("app: solana rpc_url is not configured")
	}
	cfg := indexer.Config{
		ProgramID:     a.cfg.Solana.ProgramID,
		PollInterval:  a.cfg.Indexer.PollInterval.Duration,
		ErrorInterval: a.cfg.Indexer.ErrorInterval.Duration,
		BatchSize:     a.cfg.Indexer.BatchSize,
	}
	return indexer.New(deps.Chain, deps.Store, deps.Engine, deps.Notifier, cfg, a.logger), nil
}

// buildArchiver constructs the retention archiver, or nil when archival is
// disabled or object storage was not wired.
func (a *App) buildArchiver(deps *Dependencies) *pipeline.Archiver {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return nil
	}
	return pipeline.NewArchiver(deps.Archiver, deps.LockManager, a.cfg.Archive.RetentionDays, a.logger)
}

// IndexMode runs only the chain polling indexer.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	idx, err := a.buildIndexer(deps)
	if err != nil {
		return err
	}
	orch := pipeline.NewOrchestrator(idx, nil, "", a.logger)
	return orch.Run(ctx)
}

// ArchiveMode runs one archive pass against the configured retention window
// and exits. Useful for manual runs and scheduled jobs outside the process.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	arch := a.buildArchiver(deps)
	if arch == nil {
		return fmt.Errorf("app: archive mode requires archive.enabled and s3 configuration")
	}
	return arch.Run(ctx)
}

// FullMode runs the indexer and the archive cron together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	idx, err := a.buildIndexer(deps)
	if err != nil {
		return err
	}
	orch := pipeline.NewOrchestrator(idx, a.buildArchiver(deps), a.cfg.Archive.Cron, a.logger)
	return orch.Run(ctx)
}
