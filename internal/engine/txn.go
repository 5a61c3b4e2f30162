package engine

import "context"

// txn is a minimal undo stack for operations that interleave external calls
// with ledger mutations. Steps run in order; when one fails, every completed
// step is undone in reverse so the whole operation applies all-or-nothing.
type txn struct {
	undos []func(context.Context)
}

// run executes step and, on success, registers its undo. On failure it rolls
// back all previously completed steps and returns the step's error.
func (t *txn) run(ctx context.Context, step func(context.Context) error, undo func(context.Context)) error {
	if err := step(ctx); err != nil {
		t.rollback(ctx)
		return err
	}
	if undo != nil {
		t.undos = append(t.undos, undo)
	}
	return nil
}

// rollback undoes completed steps in reverse order.
func (t *txn) rollback(ctx context.Context) {
	for i := len(t.undos) - 1; i >= 0; i-- {
		t.undos[i](ctx)
	}
	t.undos = nil
}
