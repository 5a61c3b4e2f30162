package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
)

// SettlementService is the slice of the service layer the settlement handler
// needs.
type SettlementService interface {
	Entitlement(ctx context.Context, eventID uint64, contributor common.Address) (domain.Entitlement, error)
	Claim(ctx context.Context, eventID uint64, contributor common.Address) (*big.Int, error)
	Withdraw(ctx context.Context, eventID uint64, contributor common.Address, amount *big.Int) error
}

// SettlementHandler serves entitlement reads and payout operations.
type SettlementHandler struct {
	svc    SettlementService
	logger *slog.Logger
}

func NewSettlementHandler(svc SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "settlement_handler")),
	}
}

type entitlementView struct {
	EventID     uint64     `json:"event_id"`
	Contributor string     `json:"contributor"`
	Amount      string     `json:"amount"`
	Remaining   string     `json:"remaining"`
	ComputedAt  time.Time  `json:"computed_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// Entitlement handles GET /api/events/{id}/entitlements/{contributor}.
func (h *SettlementHandler) Entitlement(w http.ResponseWriter, r *http.Request) {
	id, err := parseEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contributor, err := parseAddress(r.PathValue("contributor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ent, err := h.svc.Entitlement(r.Context(), id, contributor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entitlementView{
		EventID:     ent.EventID,
		Contributor: ent.Contributor.Hex(),
		Amount:      ent.Amount.String(),
		Remaining:   ent.Remaining.String(),
		ComputedAt:  ent.ComputedAt,
		ClaimedAt:   ent.ClaimedAt,
	})
}

type claimRequest struct {
	EventID     uint64 `json:"event_id"`
	Contributor string `json:"contributor"`
}

// Claim handles POST /api/claims. It pays out the contributor's full
// remaining entitlement in the settlement asset.
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contributor, err := parseAddress(req.Contributor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	paid, err := h.svc.Claim(r.Context(), req.EventID, contributor)
	if err != nil {
		h.logger.Warn("claim failed",
			slog.Uint64("event_id", req.EventID),
			slog.String("contributor", contributor.Hex()),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":    req.EventID,
		"contributor": contributor.Hex(),
		"paid":        paid.String(),
	})
}

type withdrawRequest struct {
	EventID     uint64 `json:"event_id"`
	Contributor string `json:"contributor"`
	Amount      string `json:"amount"`
}

// Withdraw handles POST /api/withdrawals: a partial payout against the
// contributor's remaining entitlement.
func (h *SettlementHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contributor, err := parseAddress(req.Contributor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Withdraw(r.Context(), req.EventID, contributor, amount); err != nil {
		h.logger.Warn("withdraw failed",
			slog.Uint64("event_id", req.EventID),
			slog.String("contributor", contributor.Hex()),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":    req.EventID,
		"contributor": contributor.Hex(),
		"withdrawn":   amount.String(),
	})
}
