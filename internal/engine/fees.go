package engine

import (
	"fmt"
	"math/big"

	"github.com/bmmlabs/momentum/internal/domain"
)

// Fee rates in basis points, matching the contract constants: 3% liquidity,
// 1% development, 1% community.
const (
	BpsDenominator    = 10_000
	LiquidityFeeBps   = 300
	DevelopmentFeeBps = 100
	CommunityFeeBps   = 100
)

var bpsDenom = big.NewInt(BpsDenominator)

// FeeRates holds the three fee rates in basis points.
type FeeRates struct {
	LiquidityBps   int64
	DevelopmentBps int64
	CommunityBps   int64
}

// DefaultFeeRates returns the contract's fixed rates.
func DefaultFeeRates() FeeRates {
	return FeeRates{
		LiquidityBps:   LiquidityFeeBps,
		DevelopmentBps: DevelopmentFeeBps,
		CommunityBps:   CommunityFeeBps,
	}
}

// Validate rejects negative rates and rate sums that could drive the pool
// share negative.
func (r FeeRates) Validate() error {
	if r.LiquidityBps < 0 || r.DevelopmentBps < 0 || r.CommunityBps < 0 {
		return fmt.Errorf("engine: fee rates must be non-negative, got %+v", r)
	}
	if total := r.LiquidityBps + r.DevelopmentBps + r.CommunityBps; total >= BpsDenominator {
		return fmt.Errorf("engine: fee rates total %d bps, must be below %d", total, BpsDenominator)
	}
	return nil
}

// FeeSplitter deterministically partitions a gross contribution into fee
// shares and a pool share.
type FeeSplitter struct {
	rates FeeRates
}

// NewFeeSplitter creates a FeeSplitter. The rates must already be validated.
func NewFeeSplitter(rates FeeRates) *FeeSplitter {
	return &FeeSplitter{rates: rates}
}

// Rates returns the splitter's configured rates.
func (s *FeeSplitter) Rates() FeeRates {
	return s.rates
}

// Split partitions gross into {liquidity, development, community, pool}. Each
// fee share is computed by its own floor division so rounding remainders
// always accrue to the pool share; the four shares sum to gross exactly for
// every input. Small amounts where per-component division yields zero fees go
// 100% to the pool.
func (s *FeeSplitter) Split(gross *big.Int) domain.FeeSplit {
	split := domain.FeeSplit{
		Liquidity:   feeShare(gross, s.rates.LiquidityBps),
		Development: feeShare(gross, s.rates.DevelopmentBps),
		Community:   feeShare(gross, s.rates.CommunityBps),
	}

	pool := new(big.Int).Set(gross)
	pool.Sub(pool, split.Liquidity)
	pool.Sub(pool, split.Development)
	pool.Sub(pool, split.Community)
	split.Pool = pool
	return split
}

// feeShare computes gross*bps/10000 with floor division.
func feeShare(gross *big.Int, bps int64) *big.Int {
	share := new(big.Int).Mul(gross, big.NewInt(bps))
	return share.Quo(share, bpsDenom)
}
