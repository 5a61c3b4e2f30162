package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
)

// TreasuryService credits contributor accounts on the transfer backend. It is
// the operator-gated on-ramp in live modes: the custodial bank starts empty,
// so without deposits no stake transfer can succeed.
type TreasuryService struct {
	ledger *engine.Ledger
	funder domain.Funder
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewTreasuryService creates a TreasuryService. audit may be nil and is then
// skipped.
func NewTreasuryService(
	ledger *engine.Ledger,
	funder domain.Funder,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TreasuryService {
	return &TreasuryService{
		ledger: ledger,
		funder: funder,
		audit:  audit,
		logger: logger.With(slog.String("component", "treasury_service")),
	}
}

// Deposit credits to with amount units of asset. Operator only.
func (s *TreasuryService) Deposit(ctx context.Context, caller common.Address, asset domain.Asset, to common.Address, amount *big.Int) error {
	if err := s.ledger.Access().RequireOperator(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("service: deposit amount %v: %w", amount, domain.ErrZeroAmount)
	}
	if err := s.funder.Deposit(ctx, asset, to, amount); err != nil {
		return fmt.Errorf("service: deposit: %w", err)
	}

	s.logger.InfoContext(ctx, "deposit credited",
		slog.String("asset", string(asset)),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
	)
	s.auditLog(ctx, "deposit", map[string]any{
		"asset":  string(asset),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
	return nil
}

func (s *TreasuryService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
