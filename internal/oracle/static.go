// Package oracle provides price source implementations behind the
// domain.PriceSource boundary: a static source for sim and tests, an HTTP
// feed client, and a redis-cached wrapper.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
)

// StaticSource serves fixed prices set by the operator or test. Quotes are
// stamped with the time they were set.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[domain.Asset]domain.PriceQuote
	clock  func() time.Time
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		quotes: make(map[domain.Asset]domain.PriceQuote),
		clock:  time.Now,
	}
}

// SetClock overrides the clock used to stamp quotes. Test hook.
func (s *StaticSource) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// SetPrice fixes the price for an asset, stamped now.
func (s *StaticSource) SetPrice(asset domain.Asset, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[asset] = domain.PriceQuote{
		Asset:     asset,
		Price:     new(big.Int).Set(price),
		Timestamp: s.clock(),
	}
}

// SetQuote stores a fully specified quote, timestamp included. Test hook for
// staleness scenarios.
func (s *StaticSource) SetQuote(q domain.PriceQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Asset] = q
}

// GetPrice implements domain.PriceSource.
func (s *StaticSource) GetPrice(_ context.Context, asset domain.Asset) (domain.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[asset]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("oracle: no price for %s: %w", asset, domain.ErrPriceUnavailable)
	}
	return domain.PriceQuote{
		Asset:     q.Asset,
		Price:     new(big.Int).Set(q.Price),
		Timestamp: q.Timestamp,
	}, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*StaticSource)(nil)
