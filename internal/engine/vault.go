package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
)

// Vault escrows pooled stakes and retained fees. Pool custody is tracked in
// the canonical USD-scaled unit and paid out in the settlement asset; retained
// fees are tracked per contribution asset and swept by the operator.
type Vault struct {
	mu      sync.Mutex
	account common.Address
	asset   domain.Asset // settlement asset for payouts
	backend domain.TransferBackend

	poolFund *big.Int
	feeFunds map[domain.Asset]*big.Int
}

// NewVault creates a Vault with the given custody account and settlement
// asset.
func NewVault(account common.Address, settlementAsset domain.Asset, backend domain.TransferBackend) *Vault {
	return &Vault{
		account:  account,
		asset:    settlementAsset,
		backend:  backend,
		poolFund: new(big.Int),
		feeFunds: make(map[domain.Asset]*big.Int),
	}
}

// Account returns the vault's custody account.
func (v *Vault) Account() common.Address {
	return v.account
}

// PoolBalance returns a copy of the USD-scaled pool custody balance.
func (v *Vault) PoolBalance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.poolFund)
}

// FeeBalance returns a copy of the retained fee balance for the given asset.
func (v *Vault) FeeBalance(asset domain.Asset) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if bal, ok := v.feeFunds[asset]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// creditPool records pooled value entering custody. Called by the ledger only
// after the inbound transfer has succeeded.
func (v *Vault) creditPool(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.poolFund.Add(v.poolFund, amount)
}

// debitPool removes pooled value without a transfer; used to undo a credit
// when a later step of the same transaction fails.
func (v *Vault) debitPool(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.poolFund.Sub(v.poolFund, amount)
}

// creditFees records retained fees for an asset.
func (v *Vault) creditFees(asset domain.Asset, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal, ok := v.feeFunds[asset]
	if !ok {
		bal = new(big.Int)
		v.feeFunds[asset] = bal
	}
	bal.Add(bal, amount)
}

// payOut transfers a USD-scaled amount of the settlement asset to the
// recipient and decrements the pool fund. The balance check, the transfer, and
// the decrement are a single guarded step: a failed transfer leaves the fund
// untouched.
func (v *Vault) payOut(ctx context.Context, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.poolFund.Cmp(amount) < 0 {
		return fmt.Errorf("engine: vault pool fund %s below payout %s: %w",
			v.poolFund, amount, domain.ErrInsufficientVaultBalance)
	}
	if err := v.backend.Transfer(ctx, v.asset, v.account, to, amount); err != nil {
		return fmt.Errorf("engine: vault payout to %s: %w: %w", to, domain.ErrTransferFailed, err)
	}
	v.poolFund.Sub(v.poolFund, amount)
	return nil
}

// SweepFees transfers retained fees of one asset out of the vault. Bounded by
// the tracked fee balance; the decrement happens only after the transfer
// succeeds.
func (v *Vault) SweepFees(ctx context.Context, asset domain.Asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	bal, ok := v.feeFunds[asset]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("engine: vault fee fund for %s below sweep %s: %w",
			asset, amount, domain.ErrInsufficientVaultBalance)
	}
	if err := v.backend.Transfer(ctx, asset, v.account, to, amount); err != nil {
		return fmt.Errorf("engine: vault fee sweep to %s: %w: %w", to, domain.ErrTransferFailed, err)
	}
	bal.Sub(bal, amount)
	return nil
}
