package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
)

// Price feed and native-asset scales. The reference feed reports USD with 8
// decimals; the native asset has 18.
const (
	PriceDecimals  = 8
	NativeDecimals = 18
)

// nativeScale is 10^18, the native asset's smallest-unit denominator.
var nativeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil)

// defaultMaxQuoteAge is how old a price source quote may be before it is
// treated as unavailable.
const defaultMaxQuoteAge = time.Hour

// ConvertFunc converts a raw token amount into the canonical USD-scaled unit.
type ConvertFunc func(amount *big.Int) (*big.Int, error)

// IdentityConvert returns the raw amount unconverted. It is the default for
// non-native assets, mirroring the reference token normalization which is a
// placeholder rather than a DEX/oracle integration: it is only correct for
// USD-pegged pooled tokens. Callers composing mixed-asset pools must register
// a real converter per asset or they will pool unnormalized values.
func IdentityConvert(amount *big.Int) (*big.Int, error) {
	return new(big.Int).Set(amount), nil
}

// Normalizer converts (asset, amount) contributions into USD-scaled integers
// using the external price source for the native asset and pluggable per-asset
// converters for everything else.
type Normalizer struct {
	source      domain.PriceSource
	maxQuoteAge time.Duration
	clock       func() time.Time
	converters  map[domain.Asset]ConvertFunc
}

// NormalizerOption customizes a Normalizer.
type NormalizerOption func(*Normalizer)

// WithConverter registers a conversion function for a non-native asset.
func WithConverter(asset domain.Asset, fn ConvertFunc) NormalizerOption {
	return func(n *Normalizer) { n.converters[asset] = fn }
}

// WithMaxQuoteAge overrides the staleness cutoff for price source quotes.
func WithMaxQuoteAge(age time.Duration) NormalizerOption {
	return func(n *Normalizer) { n.maxQuoteAge = age }
}

// WithClock overrides the clock used for staleness checks.
func WithClock(clock func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.clock = clock }
}

// NewNormalizer creates a Normalizer backed by the given price source.
func NewNormalizer(source domain.PriceSource, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		source:      source,
		maxQuoteAge: defaultMaxQuoteAge,
		clock:       time.Now,
		converters:  make(map[domain.Asset]ConvertFunc),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts amount units of asset into the canonical USD-scaled
// integer. For the native asset the result is amount * price / 10^18 with
// floor division; truncation is intentional and biases the fractional loss
// toward the protocol, never toward a user. A contribution whose computed
// value is zero is rejected with domain.ErrZeroValue, never silently skipped.
func (n *Normalizer) Normalize(ctx context.Context, asset domain.Asset, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrZeroAmount
	}

	var (
		value *big.Int
		err   error
	)
	if asset == domain.AssetNative {
		value, err = n.normalizeNative(ctx, amount)
	} else if convert, ok := n.converters[asset]; ok {
		value, err = convert(amount)
	} else {
		value, err = IdentityConvert(amount)
	}
	if err != nil {
		return nil, err
	}

	if value.Sign() <= 0 {
		return nil, fmt.Errorf("engine: %s amount %s normalizes to zero: %w", asset, amount, domain.ErrZeroValue)
	}
	return value, nil
}

func (n *Normalizer) normalizeNative(ctx context.Context, amount *big.Int) (*big.Int, error) {
	quote, err := n.source.GetPrice(ctx, domain.AssetNative)
	if err != nil {
		return nil, fmt.Errorf("engine: read native price: %w: %w", domain.ErrPriceUnavailable, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, fmt.Errorf("engine: native price %v is non-positive: %w", quote.Price, domain.ErrPriceUnavailable)
	}
	if quote.Timestamp.IsZero() || n.clock().Sub(quote.Timestamp) > n.maxQuoteAge {
		return nil, fmt.Errorf("engine: native price quote from %s is stale: %w", quote.Timestamp, domain.ErrPriceUnavailable)
	}

	value := new(big.Int).Mul(amount, quote.Price)
	return value.Quo(value, nativeScale), nil
}
