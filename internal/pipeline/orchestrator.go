// Package pipeline runs the engine's background loops: price feed refresh
// and cold-storage archival of settled events.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the background goroutines.
type Orchestrator struct {
	refresher       *PriceRefresher
	archiver        *Archiver
	refreshInterval time.Duration
	archiveCron     string
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator coordinating the given loops. Both
// loops are optional; a nil loop is simply not started.
func NewOrchestrator(
	refresher *PriceRefresher,
	archiver *Archiver,
	refreshInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		refresher:       refresher,
		archiver:        archiver,
		refreshInterval: refreshInterval,
		archiveCron:     archiveCron,
		logger:          logger,
	}
}

// Run starts the loops as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("refresh_interval", o.refreshInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.refresher != nil {
		g.Go(func() error {
			o.logger.Info("starting price refresher loop")
			err := o.refresher.RunLoop(ctx, o.refreshInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("price refresher: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
