package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventState represents the lifecycle state of a betting event. States advance
// strictly Scheduled -> Active -> Ended -> Resolved; the first two transitions
// are derived from the clock at call time, the last is an explicit operator
// action.
type EventState string

const (
	EventStateScheduled EventState = "scheduled"
	EventStateActive    EventState = "active"
	EventStateEnded     EventState = "ended"
	EventStateResolved  EventState = "resolved"
)

// Event is a two-sided betting event. Sides are the team token addresses from
// the on-chain deployment; pools hold the accumulated USD-normalized value
// staked on each side, fees excluded.
type Event struct {
	ID          uint64
	Name        string
	Location    string
	Description string
	StartTime   time.Time
	EndTime     time.Time

	SideA common.Address
	SideB common.Address

	PoolA *big.Int
	PoolB *big.Int

	Resolved   bool
	Winner     common.Address // zero until resolved
	ResolvedAt *time.Time

	CreatedAt time.Time
}

// StateAt derives the lifecycle state from the clock. Resolution is sticky;
// the time-based states are recomputed on every read.
func (e *Event) StateAt(now time.Time) EventState {
	if e.Resolved {
		return EventStateResolved
	}
	switch {
	case now.Before(e.StartTime):
		return EventStateScheduled
	case now.After(e.EndTime):
		return EventStateEnded
	default:
		return EventStateActive
	}
}

// HasSide reports whether addr is one of the event's two sides.
func (e *Event) HasSide(addr common.Address) bool {
	return addr == e.SideA || addr == e.SideB
}

// TotalPool returns PoolA + PoolB as a fresh big.Int.
func (e *Event) TotalPool() *big.Int {
	return new(big.Int).Add(e.PoolA, e.PoolB)
}

// EventSnapshot is the read-only view of an event returned to callers. It
// mirrors the on-chain event tuple.
type EventSnapshot struct {
	ID          uint64         `json:"id"`
	Name        string         `json:"name"`
	Location    string         `json:"location,omitempty"`
	Description string         `json:"description,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	State       EventState     `json:"state"`
	SideA       common.Address `json:"side_a"`
	SideB       common.Address `json:"side_b"`
	PoolA       *big.Int       `json:"pool_a"`
	PoolB       *big.Int       `json:"pool_b"`
	Winner      common.Address `json:"winner"`
}

// Snapshot builds an EventSnapshot at the given time. Pools are copied so the
// caller cannot mutate ledger state through the view.
func (e *Event) Snapshot(now time.Time) EventSnapshot {
	return EventSnapshot{
		ID:          e.ID,
		Name:        e.Name,
		Location:    e.Location,
		Description: e.Description,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		State:       e.StateAt(now),
		SideA:       e.SideA,
		SideB:       e.SideB,
		PoolA:       new(big.Int).Set(e.PoolA),
		PoolB:       new(big.Int).Set(e.PoolB),
		Winner:      e.Winner,
	}
}
