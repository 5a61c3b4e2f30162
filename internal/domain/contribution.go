package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Contribution is a single accepted bet. PaidAmount is in raw units of the
// asset used; NormalizedValue is the USD-scaled pool share computed at
// contribution time and frozen (it is what entered the side's pool).
type Contribution struct {
	ID          string // UUID
	EventID     uint64
	Contributor common.Address
	Side        common.Address

	PaidAsset  Asset
	PaidAmount *big.Int

	NormalizedValue *big.Int

	PlacedAt time.Time
}

// Entitlement is a contributor's computed share of a resolved event's total
// pool. Remaining starts at Amount and is decremented by claims and partial
// vault withdrawals; it never increases.
type Entitlement struct {
	EventID     uint64
	Contributor common.Address
	Amount      *big.Int
	Remaining   *big.Int
	ComputedAt  time.Time
	ClaimedAt   *time.Time
}
