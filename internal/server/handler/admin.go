package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/server/middleware"
)

// AdminService is the slice of the service layer the admin handler needs.
// Every method checks the caller against the current operator.
type AdminService interface {
	SetPaused(ctx context.Context, caller common.Address, paused bool) error
	TransferOperator(ctx context.Context, caller, next common.Address) error
	SweepFees(ctx context.Context, caller common.Address, asset domain.Asset, to common.Address, amount *big.Int) error
	Deposit(ctx context.Context, caller common.Address, asset domain.Asset, to common.Address, amount *big.Int) error
}

// AdminHandler serves operator-only control endpoints. All routes are mounted
// behind the operator signature middleware.
type AdminHandler struct {
	svc    AdminService
	logger *slog.Logger
}

func NewAdminHandler(svc AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "admin_handler")),
	}
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

// SetPaused handles POST /api/admin/pause.
func (h *AdminHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "missing operator signature")
		return
	}

	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetPaused(r.Context(), caller, req.Paused); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("pause flag updated", slog.Bool("paused", req.Paused))
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

type transferOperatorRequest struct {
	Next string `json:"next"`
}

// TransferOperator handles POST /api/admin/operator.
func (h *AdminHandler) TransferOperator(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "missing operator signature")
		return
	}

	var req transferOperatorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	next, err := parseAddress(req.Next)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.TransferOperator(r.Context(), caller, next); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("operator transferred", slog.String("next", next.Hex()))
	writeJSON(w, http.StatusOK, map[string]string{"operator": next.Hex()})
}

type sweepFeesRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// SweepFees handles POST /api/admin/sweep. It moves retained fee balance out
// of the vault to the given recipient.
func (h *AdminHandler) SweepFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "missing operator signature")
		return
	}

	var req sweepFeesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SweepFees(r.Context(), caller, domain.Asset(req.Asset), to, amount); err != nil {
		h.logger.Warn("fee sweep failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	h.logger.Info("fees swept",
		slog.String("asset", req.Asset),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()))
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":  req.Asset,
		"to":     to.Hex(),
		"amount": amount.String(),
	})
}

type depositRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Deposit handles POST /api/admin/deposit. It credits a contributor account
// on the custodial backend so stake transfers can clear.
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "missing operator signature")
		return
	}

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Deposit(r.Context(), caller, domain.Asset(req.Asset), to, amount); err != nil {
		h.logger.Warn("deposit failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	h.logger.Info("deposit credited",
		slog.String("asset", req.Asset),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()))
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":  req.Asset,
		"to":     to.Hex(),
		"amount": amount.String(),
	})
}
