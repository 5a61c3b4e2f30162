package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
)

// SettlementReport is the cold-storage record written for a resolved event.
// Amounts are serialised as decimal strings so that full-precision values
// survive the JSON round trip.
type SettlementReport struct {
	EventID     uint64    `json:"event_id"`
	Name        string    `json:"name"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Winner      string    `json:"winner"`
	PoolA       string    `json:"pool_a"`
	PoolB       string    `json:"pool_b"`
	TotalPool   string    `json:"total_pool"`
	ResolvedAt  time.Time `json:"resolved_at"`
	ArchivedAt  time.Time `json:"archived_at"`

	Contributions []ReportContribution `json:"contributions"`
	Entitlements  []ReportEntitlement  `json:"entitlements"`
}

// ReportContribution is a single accepted bet inside a settlement report.
type ReportContribution struct {
	ID              string    `json:"id"`
	Contributor     string    `json:"contributor"`
	Side            string    `json:"side"`
	PaidAsset       string    `json:"paid_asset"`
	PaidAmount      string    `json:"paid_amount"`
	NormalizedValue string    `json:"normalized_value"`
	PlacedAt        time.Time `json:"placed_at"`
}

// ReportEntitlement is a computed payout share inside a settlement report.
type ReportEntitlement struct {
	Contributor string     `json:"contributor"`
	Amount      string     `json:"amount"`
	Remaining   string     `json:"remaining"`
	ComputedAt  time.Time  `json:"computed_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// ReportArchiver implements domain.ReportArchiver by querying the stores for
// resolved events past the retention cutoff, serialising one settlement
// report per event, and uploading it to S3.
//
// Rows in the primary store are marked archived but never deleted here; any
// pruning is a separate, explicit step after the archive is verified.
type ReportArchiver struct {
	writer        domain.BlobWriter
	events        domain.EventStore
	contributions domain.ContributionStore
	entitlements  domain.EntitlementStore
	audit         domain.AuditStore
	batchSize     int
}

// NewReportArchiver creates a ReportArchiver. batchSize bounds how many
// events a single ArchiveSettled pass will process; zero means 100.
func NewReportArchiver(
	writer domain.BlobWriter,
	events domain.EventStore,
	contributions domain.ContributionStore,
	entitlements domain.EntitlementStore,
	audit domain.AuditStore,
	batchSize int,
) *ReportArchiver {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReportArchiver{
		writer:        writer,
		events:        events,
		contributions: contributions,
		entitlements:  entitlements,
		audit:         audit,
		batchSize:     batchSize,
	}
}

// ArchiveSettled writes settlement reports for resolved, unarchived events
// whose resolution is older than the cutoff and marks them archived. It
// returns the number of events archived in this pass.
func (a *ReportArchiver) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListUnarchivedResolved(ctx, before, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled query: %w", err)
	}

	var archived int64
	for _, ev := range events {
		if err := a.archiveOne(ctx, ev); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

func (a *ReportArchiver) archiveOne(ctx context.Context, ev domain.Event) error {
	contribs, err := a.contributions.ListByEvent(ctx, ev.ID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("s3blob: archive event %d contributions: %w", ev.ID, err)
	}
	ents, err := a.entitlements.ListByEvent(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("s3blob: archive event %d entitlements: %w", ev.ID, err)
	}

	report := buildReport(ev, contribs, ents, time.Now().UTC())

	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: archive event %d marshal: %w", ev.ID, err)
	}

	path := reportPath(ev)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive event %d upload: %w", ev.ID, err)
	}

	if err := a.events.MarkArchived(ctx, ev.ID); err != nil {
		return fmt.Errorf("s3blob: archive event %d mark: %w", ev.ID, err)
	}

	if err := a.audit.Log(ctx, "archive.settlement_report", map[string]any{
		"event_id":      ev.ID,
		"path":          path,
		"contributions": len(contribs),
		"entitlements":  len(ents),
	}); err != nil {
		return fmt.Errorf("s3blob: archive event %d audit log: %w", ev.ID, err)
	}

	return nil
}

// reportPath builds the S3 key for a settlement report, partitioned by the
// year-month the event resolved in:
//
//	reports/2026-03/event-7.json
func reportPath(ev domain.Event) string {
	ym := ev.ResolvedAt.Format("2006-01")
	return fmt.Sprintf("reports/%s/event-%d.json", ym, ev.ID)
}

func buildReport(ev domain.Event, contribs []domain.Contribution, ents []domain.Entitlement, now time.Time) SettlementReport {
	report := SettlementReport{
		EventID:     ev.ID,
		Name:        ev.Name,
		Location:    ev.Location,
		Description: ev.Description,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		Winner:      ev.Winner.Hex(),
		PoolA:       ev.PoolA.String(),
		PoolB:       ev.PoolB.String(),
		TotalPool:   ev.TotalPool().String(),
		ArchivedAt:  now,
	}
	if ev.ResolvedAt != nil {
		report.ResolvedAt = *ev.ResolvedAt
	}

	for _, c := range contribs {
		report.Contributions = append(report.Contributions, ReportContribution{
			ID:              c.ID,
			Contributor:     c.Contributor.Hex(),
			Side:            c.Side.Hex(),
			PaidAsset:       string(c.PaidAsset),
			PaidAmount:      c.PaidAmount.String(),
			NormalizedValue: c.NormalizedValue.String(),
			PlacedAt:        c.PlacedAt,
		})
	}
	for _, e := range ents {
		report.Entitlements = append(report.Entitlements, ReportEntitlement{
			Contributor: e.Contributor.Hex(),
			Amount:      e.Amount.String(),
			Remaining:   e.Remaining.String(),
			ComputedAt:  e.ComputedAt,
			ClaimedAt:   e.ClaimedAt,
		})
	}
	return report
}

var _ domain.ReportArchiver = (*ReportArchiver)(nil)
