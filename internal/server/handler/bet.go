package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
)

// BettingService is the slice of the service layer the bet handler needs.
type BettingService interface {
	Place(ctx context.Context, req engine.ContributionRequest) (domain.Contribution, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]domain.Contribution, error)
}

// BetHandler serves contribution placement and listing.
type BetHandler struct {
	svc    BettingService
	logger *slog.Logger
}

func NewBetHandler(svc BettingService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "bet_handler")),
	}
}

type betView struct {
	ID              string    `json:"id"`
	EventID         uint64    `json:"event_id"`
	Contributor     string    `json:"contributor"`
	Side            string    `json:"side"`
	Asset           string    `json:"asset"`
	PaidAmount      string    `json:"paid_amount"`
	NormalizedValue string    `json:"normalized_value"`
	PlacedAt        time.Time `json:"placed_at"`
}

func toBetView(c domain.Contribution) betView {
	return betView{
		ID:              c.ID,
		EventID:         c.EventID,
		Contributor:     c.Contributor.Hex(),
		Side:            c.Side.Hex(),
		Asset:           string(c.PaidAsset),
		PaidAmount:      c.PaidAmount.String(),
		NormalizedValue: c.NormalizedValue.String(),
		PlacedAt:        c.PlacedAt,
	}
}

type placeBetRequest struct {
	EventID     uint64 `json:"event_id"`
	Side        string `json:"side"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Contributor string `json:"contributor"`
}

// Place handles POST /api/bets.
func (h *BetHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side, err := parseAddress(req.Side)
	if err != nil {
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
	if req.Asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}

	contrib, err := h.svc.Place(r.Context(), engine.ContributionRequest{
		EventID:     req.EventID,
		Side:        side,
		Asset:       domain.Asset(req.Asset),
		Amount:      amount,
		Contributor: contributor,
	})
	if err != nil {
		h.logger.Warn("place bet failed",
			slog.Uint64("event_id", req.EventID),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBetView(contrib))
}

// ListByEvent handles GET /api/events/{id}/contributions.
func (h *BetHandler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contribs, err := h.svc.ListByEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]betView, 0, len(contribs))
	for _, c := range contribs {
		views = append(views, toBetView(c))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":      id,
		"contributions": views,
		"count":         len(views),
	})
}
