package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
	"github.com/bmmlabs/momentum/internal/server/middleware"
)

// EventService is the slice of the service layer the event handler needs.
type EventService interface {
	Create(ctx context.Context, caller common.Address, p engine.EventParams) (domain.EventSnapshot, error)
	Resolve(ctx context.Context, caller common.Address, eventID uint64, winner common.Address) (domain.EventSnapshot, error)
	Get(ctx context.Context, eventID uint64) (domain.EventSnapshot, error)
	List(ctx context.Context) []domain.EventSnapshot
}

// EventHandler serves the event lifecycle endpoints.
type EventHandler struct {
	svc    EventService
	logger *slog.Logger
}

func NewEventHandler(svc EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "event_handler")),
	}
}

// eventView is the wire shape of an event snapshot. Pool amounts are decimal
// strings so 256-bit values survive JSON round trips.
type eventView struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	State       string    `json:"state"`
	SideA       string    `json:"side_a"`
	SideB       string    `json:"side_b"`
	PoolA       string    `json:"pool_a"`
	PoolB       string    `json:"pool_b"`
	Winner      string    `json:"winner,omitempty"`
}

func toEventView(snap domain.EventSnapshot) eventView {
	v := eventView{
		ID:          snap.ID,
		Name:        snap.Name,
		Location:    snap.Location,
		Description: snap.Description,
		StartTime:   snap.StartTime,
		EndTime:     snap.EndTime,
		State:       string(snap.State),
		SideA:       snap.SideA.Hex(),
		SideB:       snap.SideB.Hex(),
		PoolA:       snap.PoolA.String(),
		PoolB:       snap.PoolB.String(),
	}
	if snap.Winner != (common.Address{}) {
		v.Winner = snap.Winner.Hex()
	}
	return v
}

type createEventRequest struct {
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	SideA       string    `json:"side_a"`
	SideB       string    `json:"side_b"`
}

// Create handles POST /api/events. Operator only.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "missing operator signature")
		return
	}

	var req createEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sideA, err := parseAddress(req.SideA)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sideB, err := parseAddress(req.SideB)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.svc.Create(r.Context(), caller, engine.EventParams{
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		SideA:       sideA,
		SideB:       sideB,
	})
	if err != nil {
		h.logger.Warn("create event failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventView(snap))
}

type resolveEventRequest struct {
	Winner string `json:"winner"`
}

// Resolve handles POST /api/events/{id}/resolve. Operator only.
func (h *EventHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "missing operator signature")
		return
	}

	id, err := parseEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	winner, err := parseAddress(req.Winner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.svc.Resolve(r.Context(), caller, id, winner)
	if err != nil {
		h.logger.Warn("resolve event failed",
			slog.Uint64("event_id", id),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEventView(snap))
}

// Get handles GET /api/events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEventView(snap))
}

// List handles GET /api/events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.svc.List(r.Context())

	views := make([]eventView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, toEventView(snap))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": views,
		"count":  len(views),
	})
}
