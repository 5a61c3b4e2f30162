package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/oracle"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNormalizeNative(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	src := oracle.NewStaticSource()
	src.SetClock(fixedClock(now))
	// $2,000.00000000 with 8 decimals.
	src.SetPrice(domain.AssetNative, big.NewInt(2_000_00000000))

	n := NewNormalizer(src, WithClock(fixedClock(now)))

	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	got, err := n.Normalize(context.Background(), domain.AssetNative, oneEther)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Cmp(big.NewInt(2_000_00000000)) != 0 {
		t.Fatalf("normalized = %s, want 200000000000", got)
	}
}

func TestNormalizeNativeFloorsTowardProtocol(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	src := oracle.NewStaticSource()
	src.SetClock(fixedClock(now))
	src.SetPrice(domain.AssetNative, big.NewInt(3))

	n := NewNormalizer(src, WithClock(fixedClock(now)))

	// amount * price = 3 * (10^18 - 1); dividing by 10^18 floors to 2.
	amount := new(big.Int).Sub(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), big.NewInt(1))
	got, err := n.Normalize(context.Background(), domain.AssetNative, amount)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("normalized = %s, want 2 (floored)", got)
	}
}

func TestNormalizePriceUnavailable(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	cases := []struct {
		name  string
		setup func(*oracle.StaticSource)
	}{
		{
			name:  "no quote",
			setup: func(src *oracle.StaticSource) {},
		},
		{
			name: "zero price",
			setup: func(src *oracle.StaticSource) {
				src.SetQuote(domain.PriceQuote{Asset: domain.AssetNative, Price: big.NewInt(0), Timestamp: now})
			},
		},
		{
			name: "negative price",
			setup: func(src *oracle.StaticSource) {
				src.SetQuote(domain.PriceQuote{Asset: domain.AssetNative, Price: big.NewInt(-5), Timestamp: now})
			},
		},
		{
			name: "stale quote",
			setup: func(src *oracle.StaticSource) {
				src.SetQuote(domain.PriceQuote{
					Asset:     domain.AssetNative,
					Price:     big.NewInt(2_000_00000000),
					Timestamp: now.Add(-2 * time.Hour),
				})
			},
		},
		{
			name: "zero timestamp",
			setup: func(src *oracle.StaticSource) {
				src.SetQuote(domain.PriceQuote{Asset: domain.AssetNative, Price: big.NewInt(2_000_00000000)})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := oracle.NewStaticSource()
			tc.setup(src)
			n := NewNormalizer(src, WithClock(fixedClock(now)))

			_, err := n.Normalize(context.Background(), domain.AssetNative, oneEther)
			if !errors.Is(err, domain.ErrPriceUnavailable) {
				t.Fatalf("err = %v, want ErrPriceUnavailable", err)
			}
		})
	}
}

func TestNormalizeZeroAmount(t *testing.T) {
	n := NewNormalizer(oracle.NewStaticSource())
	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		if _, err := n.Normalize(context.Background(), domain.AssetNative, amount); !errors.Is(err, domain.ErrZeroAmount) {
			t.Fatalf("amount %v: err = %v, want ErrZeroAmount", amount, err)
		}
	}
}

func TestNormalizeZeroValueRejected(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	src := oracle.NewStaticSource()
	src.SetClock(fixedClock(now))
	src.SetPrice(domain.AssetNative, big.NewInt(1))

	n := NewNormalizer(src, WithClock(fixedClock(now)))

	// 1 wei at price 1e-8 USD floors to zero value; it must be rejected, not
	// silently pooled.
	_, err := n.Normalize(context.Background(), domain.AssetNative, big.NewInt(1))
	if !errors.Is(err, domain.ErrZeroValue) {
		t.Fatalf("err = %v, want ErrZeroValue", err)
	}
}

func TestNormalizeNonNativeDefaultsToIdentity(t *testing.T) {
	n := NewNormalizer(oracle.NewStaticSource())

	got, err := n.Normalize(context.Background(), domain.Asset("nzdd"), big.NewInt(12345))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("normalized = %s, want 12345", got)
	}
}

func TestNormalizeRegisteredConverter(t *testing.T) {
	halve := func(amount *big.Int) (*big.Int, error) {
		return new(big.Int).Quo(amount, big.NewInt(2)), nil
	}
	n := NewNormalizer(oracle.NewStaticSource(), WithConverter(domain.Asset("tok"), halve))

	got, err := n.Normalize(context.Background(), domain.Asset("tok"), big.NewInt(100))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("normalized = %s, want 50", got)
	}
}
