package engine

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
)

// AccessControl gates operator-only operations behind a single privileged
// identity set at construction and transferable by the current operator only.
// It also carries the pause flag, which blocks new contributions but never
// resolution or claims, so funds cannot be trapped.
type AccessControl struct {
	mu       sync.RWMutex
	operator common.Address
	paused   bool
}

// NewAccessControl creates an AccessControl with the given initial operator.
func NewAccessControl(operator common.Address) (*AccessControl, error) {
	if operator == (common.Address{}) {
		return nil, fmt.Errorf("engine: operator must not be the zero address")
	}
	return &AccessControl{operator: operator}, nil
}

// Operator returns the current operator identity.
func (a *AccessControl) Operator() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.operator
}

// RequireOperator returns domain.ErrUnauthorized unless caller is the
// operator.
func (a *AccessControl) RequireOperator(caller common.Address) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if caller != a.operator {
		return fmt.Errorf("engine: caller %s is not the operator: %w", caller, domain.ErrUnauthorized)
	}
	return nil
}

// TransferOperator hands the operator role to next. Only the current operator
// may call it; the zero address is rejected so the role cannot be burned.
func (a *AccessControl) TransferOperator(caller, next common.Address) error {
	if next == (common.Address{}) {
		return fmt.Errorf("engine: new operator must not be the zero address")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.operator {
		return fmt.Errorf("engine: caller %s is not the operator: %w", caller, domain.ErrUnauthorized)
	}
	a.operator = next
	return nil
}

// SetPaused toggles the contribution pause. Operator only.
func (a *AccessControl) SetPaused(caller common.Address, paused bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.operator {
		return fmt.Errorf("engine: caller %s is not the operator: %w", caller, domain.ErrUnauthorized)
	}
	a.paused = paused
	return nil
}

// Paused reports whether contributions are paused.
func (a *AccessControl) Paused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// requireUnpaused returns domain.ErrPaused while the pause flag is set.
func (a *AccessControl) requireUnpaused() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.paused {
		return domain.ErrPaused
	}
	return nil
}
