// Package bank provides an in-memory asset transfer backend with per-asset,
// per-account balances. It backs sim mode and serves as the test double for
// the engine's external transfer boundary; a production deployment plugs a
// chain-backed implementation into the same interface.
package bank

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
)

// Bank is an in-memory ledger of asset balances.
type Bank struct {
	mu       sync.Mutex
	balances map[domain.Asset]map[common.Address]*big.Int
}

// New creates an empty Bank.
func New() *Bank {
	return &Bank{balances: make(map[domain.Asset]map[common.Address]*big.Int)}
}

// Mint credits an account out of thin air. Used to seed sim accounts and the
// vault's settlement-asset float.
func (b *Bank) Mint(asset domain.Asset, to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, to, amount)
}

// Deposit credits an account with externally sourced funds. It is the
// operator on-ramp for live modes, where nothing else funds contributor
// accounts.
func (b *Bank) Deposit(ctx context.Context, asset domain.Asset, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bank: deposit: %w", domain.ErrContextDone)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: deposit amount %v must be positive", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, to, amount)
	return nil
}

// Balance returns a copy of an account's balance for the given asset.
func (b *Bank) Balance(asset domain.Asset, account common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if accounts, ok := b.balances[asset]; ok {
		if bal, ok := accounts[account]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}

// Transfer moves amount units of asset between accounts. It fails without any
// balance change when the source account's funds are insufficient.
func (b *Bank) Transfer(ctx context.Context, asset domain.Asset, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bank: transfer: %w", domain.ErrContextDone)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: transfer amount %v must be positive", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	accounts := b.balances[asset]
	bal, ok := accounts[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("bank: account %s has insufficient %s funds", from, asset)
	}
	bal.Sub(bal, amount)
	b.credit(asset, to, amount)
	return nil
}

// credit adds amount to an account balance. Callers hold b.mu.
func (b *Bank) credit(asset domain.Asset, to common.Address, amount *big.Int) {
	accounts, ok := b.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		b.balances[asset] = accounts
	}
	bal, ok := accounts[to]
	if !ok {
		bal = new(big.Int)
		accounts[to] = bal
	}
	bal.Add(bal, amount)
}

// Compile-time interface checks.
var (
	_ domain.TransferBackend = (*Bank)(nil)
	_ domain.Funder          = (*Bank)(nil)
)
