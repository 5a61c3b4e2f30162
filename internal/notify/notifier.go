// Package notify provides a multi-channel notification system. Engine events
// are dispatched to all registered senders (Telegram, Discord, signed
// webhooks) and can be filtered by kind so operators receive only the alerts
// they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Kind identifies the class of engine event a notification reports.
type Kind string

const (
	KindEventCreated  Kind = "event_created"
	KindEventResolved Kind = "event_resolved"
	KindLargeBet      Kind = "large_bet"
	KindClaimPaid     Kind = "claim_paid"
	KindEngineError   Kind = "engine_error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed kinds; Notify only forwards messages whose kind is in the
// allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	allowed map[Kind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// notifications whose kind appears in kinds will be forwarded by Notify. If
// kinds is empty, all kinds are allowed.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[Kind(strings.TrimSpace(k))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders only if its kind is in the
// allowed list. If no kinds were configured, everything passes.
func (n *Notifier) Notify(ctx context.Context, kind Kind, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[kind] {
		n.logger.DebugContext(ctx, "notification filtered out",
			slog.String("kind", string(kind)),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of kind.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders. Errors from individual senders are
// collected and returned as a combined error; a single sender failure does
// not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
