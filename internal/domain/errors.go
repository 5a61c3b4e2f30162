package domain

import "errors"

// Validation failures. All are detected before any state mutation.
var (
	ErrInvalidWindow  = errors.New("invalid event window")
	ErrInvalidSides   = errors.New("invalid event sides")
	ErrEventNotFound  = errors.New("event not found")
	ErrEventNotActive = errors.New("event not active")
	ErrInvalidSide    = errors.New("side does not belong to event")
	ErrZeroAmount     = errors.New("zero amount")
	ErrZeroValue      = errors.New("contribution has zero normalized value")
	ErrInvalidWinner  = errors.New("winner does not belong to event")

	// ErrDuplicateContribution is returned when the single-bet policy is
	// enabled and a contributor already has a bet on the event.
	ErrDuplicateContribution = errors.New("contributor already bet on event")
)

// Lifecycle and settlement failures.
var (
	ErrAlreadyResolved          = errors.New("event already resolved")
	ErrNotYetEnded              = errors.New("event has not ended")
	ErrNoWinningContribution    = errors.New("no contribution on winning side")
	ErrNothingToClaim           = errors.New("nothing to claim")
	ErrInsufficientVaultBalance = errors.New("insufficient vault balance")
)

// External-call and authorization failures. A transfer or price-read failure
// aborts the enclosing operation and leaves state exactly as before the call.
var (
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrTransferFailed   = errors.New("transfer failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPaused           = errors.New("contributions paused")
)

// Infrastructure errors shared by stores and caches.
var (
	ErrNotFound    = errors.New("not found")
	ErrLockHeld    = errors.New("lock already held")
	ErrContextDone = errors.New("context cancelled")
)
