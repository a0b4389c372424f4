package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/curvemarket/internal/indexer"
)

// Orchestrator runs the background workers as one unit: the polling indexer
// and, when configured, the archive cron.
type Orchestrator struct {
	indexer     *indexer.Indexer
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil to run
// indexing only; an empty archiveCron likewise disables the archive loop.
func NewOrchestrator(idx *indexer.Indexer, archiver *Archiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		indexer:     idx,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger,
	}
}

// Run starts the workers in an errgroup and blocks until ctx is cancelled or
// one of them fails; a failure cancels the shared context so the rest shut
// down together.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.indexer != nil {
		g.Go(func() error {
			o.logger.Info("starting indexer loop")
			err := o.indexer.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
