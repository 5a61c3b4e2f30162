// Package service composes the ledger engine with persistence, pub/sub,
// notifications, and the audit log. Services own the write-through ordering:
// the engine is the source of truth, the stores mirror it, and bus publishes
// and notifications are best effort.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
	"github.com/bmmlabs/momentum/internal/notify"
)

// EventService handles event lifecycle: creation, resolution, and reads.
type EventService struct {
	ledger   *engine.Ledger
	events   domain.EventStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewEventService creates an EventService. bus, notifier, and audit may be
// nil; the corresponding side channels are then skipped.
func NewEventService(
	ledger *engine.Ledger,
	events domain.EventStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	audit domain.AuditStore,
	logger *slog.Logger,
) *EventService {
	return &EventService{
		ledger:   ledger,
		events:   events,
		bus:      bus,
		notifier: notifier,
		audit:    audit,
		logger:   logger.With(slog.String("component", "event_service")),
	}
}

// Create registers a new event through the ledger and mirrors it to the
// store. Operator only.
func (s *EventService) Create(ctx context.Context, caller common.Address, p engine.EventParams) (domain.EventSnapshot, error) {
	ev, err := s.ledger.CreateEvent(caller, p)
	if err != nil {
		return domain.EventSnapshot{}, fmt.Errorf("event_service: create: %w", err)
	}

	if s.events != nil {
		if storeErr := s.events.Create(ctx, ev); storeErr != nil {
			// The ledger already accepted the event; a store failure is
			// surfaced loudly but does not unwind the ledger.
			s.logger.ErrorContext(ctx, "event store create failed",
				slog.Uint64("event_id", ev.ID),
				slog.String("error", storeErr.Error()),
			)
		}
	}

	s.auditLog(ctx, "event.created", map[string]any{
		"event_id": ev.ID,
		"name":     ev.Name,
		"start":    ev.StartTime,
		"end":      ev.EndTime,
	})
	s.publishEvent(ctx, "created", ev.ID)

	if s.notifier != nil {
		title := "Event created"
		msg := fmt.Sprintf("#%d %s (%s - %s)", ev.ID, ev.Name,
			ev.StartTime.Format("Jan 2 15:04 MST"), ev.EndTime.Format("15:04 MST"))
		if err := s.notifier.Notify(ctx, notify.KindEventCreated, title, msg); err != nil {
			s.logger.WarnContext(ctx, "event created notification failed", slog.String("error", err.Error()))
		}
	}

	snap, err := s.ledger.Snapshot(ev.ID)
	if err != nil {
		return domain.EventSnapshot{}, fmt.Errorf("event_service: snapshot after create: %w", err)
	}
	return snap, nil
}

// Resolve fixes the winner of an ended event through the ledger and mirrors
// the resolution to the store. Operator only.
func (s *EventService) Resolve(ctx context.Context, caller common.Address, eventID uint64, winner common.Address) (domain.EventSnapshot, error) {
	ev, err := s.ledger.Resolve(caller, eventID, winner)
	if err != nil {
		return domain.EventSnapshot{}, fmt.Errorf("event_service: resolve %d: %w", eventID, err)
	}

	if s.events != nil {
		if storeErr := s.events.Update(ctx, ev); storeErr != nil {
			s.logger.ErrorContext(ctx, "event store update failed",
				slog.Uint64("event_id", ev.ID),
				slog.String("error", storeErr.Error()),
			)
		}
	}

	s.auditLog(ctx, "event.resolved", map[string]any{
		"event_id": ev.ID,
		"winner":   winner.Hex(),
	})
	s.publishEvent(ctx, "resolved", ev.ID)

	if s.notifier != nil {
		title := "Event resolved"
		msg := fmt.Sprintf("#%d %s won by %s; total pool %s", ev.ID, ev.Name, winner.Hex(), ev.TotalPool().String())
		if err := s.notifier.Notify(ctx, notify.KindEventResolved, title, msg); err != nil {
			s.logger.WarnContext(ctx, "event resolved notification failed", slog.String("error", err.Error()))
		}
	}

	snap, err := s.ledger.Snapshot(ev.ID)
	if err != nil {
		return domain.EventSnapshot{}, fmt.Errorf("event_service: snapshot after resolve: %w", err)
	}
	return snap, nil
}

// Get returns a read-only view of one event.
func (s *EventService) Get(ctx context.Context, eventID uint64) (domain.EventSnapshot, error) {
	snap, err := s.ledger.Snapshot(eventID)
	if err != nil {
		return domain.EventSnapshot{}, fmt.Errorf("event_service: get %d: %w", eventID, err)
	}
	return snap, nil
}

// List returns views of every event ordered by id.
func (s *EventService) List(ctx context.Context) []domain.EventSnapshot {
	return s.ledger.Snapshots()
}

// SetPaused toggles the engine-wide pause flag. Operator only.
func (s *EventService) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	if err := s.ledger.Access().SetPaused(caller, paused); err != nil {
		return fmt.Errorf("event_service: set paused: %w", err)
	}
	s.auditLog(ctx, "engine.paused", map[string]any{"paused": paused})
	return nil
}

// TransferOperator hands the operator role to a new address. Operator only.
func (s *EventService) TransferOperator(ctx context.Context, caller, next common.Address) error {
	if err := s.ledger.Access().TransferOperator(caller, next); err != nil {
		return fmt.Errorf("event_service: transfer operator: %w", err)
	}
	s.auditLog(ctx, "engine.operator_transferred", map[string]any{"next": next.Hex()})
	return nil
}

// eventSignal is the payload published on ch:event.
type eventSignal struct {
	Action  string `json:"action"`
	EventID uint64 `json:"event_id"`
}

func (s *EventService) publishEvent(ctx context.Context, action string, eventID uint64) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(eventSignal{Action: action, EventID: eventID})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelEvent, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.Uint64("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EventService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
