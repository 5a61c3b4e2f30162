package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler reports process liveness and the reachability of attached
// dependencies. Dependencies are optional; a nil map means bare liveness.
type HealthHandler struct {
	startedAt time.Time
	deps      map[string]Pinger
}

func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		startedAt: time.Now(),
		deps:      deps,
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Deps   map[string]string `json:"deps,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	}

	status := http.StatusOK
	if len(h.deps) > 0 {
		resp.Deps = make(map[string]string, len(h.deps))
		for name, dep := range h.deps {
			if err := dep.Health(ctx); err != nil {
				resp.Deps[name] = "unreachable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Deps[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
