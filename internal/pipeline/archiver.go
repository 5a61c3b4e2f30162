package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
)

// Archiver moves settled events from the database to S3 cold storage once
// their resolution is older than the retention window.
type Archiver struct {
	reports       domain.ReportArchiver
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(reports domain.ReportArchiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		reports:       reports,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass over events resolved before the
// retention cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	archived, err := a.reports.ArchiveSettled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving settled events before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete", slog.Int64("events_archived", archived))
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. Example: "0 3 * * *" runs every day at 03:00.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
