package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies a contribution currency. The native asset is the chain's
// base currency; anything else is a token symbol (e.g. the NZDD pooled token).
type Asset string

// AssetNative is the chain-native asset, priced through the external feed.
const AssetNative Asset = "native"

// PriceQuote is a single reading from the external price source. Price is a
// fixed-point integer with PriceDecimals decimals (8 for the reference feed).
type PriceQuote struct {
	Asset     Asset
	Price     *big.Int
	Timestamp time.Time
}

// PriceSource supplies asset/USD quotes. A non-positive price or a stale
// timestamp is surfaced to callers as ErrPriceUnavailable by the normalizer.
type PriceSource interface {
	GetPrice(ctx context.Context, asset Asset) (PriceQuote, error)
}

// TransferBackend moves asset units between accounts. A failure aborts the
// enclosing engine transaction; the engine never retries.
type TransferBackend interface {
	Transfer(ctx context.Context, asset Asset, from, to common.Address, amount *big.Int) error
}

// Funder credits external deposits into backend accounts. The custodial bank
// implements it as the on-ramp for live modes; a chain-backed backend has no
// use for it since deposits arrive on-chain.
type Funder interface {
	Deposit(ctx context.Context, asset Asset, to common.Address, amount *big.Int) error
}

// FeeRecipients are the fixed destinations for the three fee shares, set at
// engine construction as in the contract deployment.
type FeeRecipients struct {
	Liquidity   common.Address
	Development common.Address
	Community   common.Address
}

// FeeSplit partitions a gross contribution. The shares always sum exactly to
// the gross amount; integer remainders accrue to Pool.
type FeeSplit struct {
	Liquidity   *big.Int
	Development *big.Int
	Community   *big.Int
	Pool        *big.Int
}

// Sum returns the exact total of all four shares.
func (s FeeSplit) Sum() *big.Int {
	total := new(big.Int).Add(s.Liquidity, s.Development)
	total.Add(total, s.Community)
	return total.Add(total, s.Pool)
}
