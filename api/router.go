package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bin-dates/models"
	"bin-dates/services"
	"bin-dates/utils"
)

// Coordinator is the slice of services.Coordinator the API depends on.
type Coordinator interface {
	Refresh(ctx context.Context) (models.Snapshot, error)
	Status() services.Status
}

// StatesResponse is the body of GET /api/states and POST /api/refresh.
type StatesResponse struct {
	Available           bool                 `json:"available"`
	UPRN                string               `json:"uprn,omitempty"`
	CycleID             string               `json:"cycle_id,omitempty"`
	RefreshedAt         *time.Time           `json:"refreshed_at,omitempty"`
	LastAttempt         *time.Time           `json:"last_attempt,omitempty"`
	LastError           string               `json:"last_error,omitempty"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	States              []models.EntityState `json:"states"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler exposes the coordinator's state over HTTP.
type Handler struct {
	coordinator Coordinator
	metrics     http.Handler
	logger      *utils.Logger
}

func NewHandler(c Coordinator, metricsHandler http.Handler, logger *utils.Logger) *Handler {
	return &Handler{coordinator: c, metrics: metricsHandler, logger: logger}
}

// NewRouter mounts every endpoint on a chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/states", h.handleStates)
		r.Get("/states/{entityID}", h.handleEntity)
		r.Post("/refresh", h.handleRefresh)
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleStates(w http.ResponseWriter, _ *http.Request) {
	resp := buildStates(h.coordinator.Status())
	status := http.StatusOK
	if !resp.Available {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) handleEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityID")
	st := h.coordinator.Status()
	if !st.Available {
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no collection dates fetched yet"})
		return
	}
	for _, s := range st.Snapshot.EntityStates() {
		if s.EntityID == id {
			h.writeJSON(w, http.StatusOK, s)
			return
		}
	}
	h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown entity " + id})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.coordinator.Refresh(r.Context()); err != nil {
		h.logger.Warn("[api] Manual refresh failed: %v", err)
		resp := buildStates(h.coordinator.Status())
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, buildStates(h.coordinator.Status()))
}

func buildStates(st services.Status) StatesResponse {
	resp := StatesResponse{
		Available:           st.Available,
		LastError:           st.LastError,
		ConsecutiveFailures: st.ConsecutiveFailures,
		States:              []models.EntityState{},
	}
	if !st.LastAttempt.IsZero() {
		t := st.LastAttempt
		resp.LastAttempt = &t
	}
	if st.Available {
		t := st.Snapshot.RefreshedAt
		resp.RefreshedAt = &t
		resp.UPRN = string(st.Snapshot.UPRN)
		resp.CycleID = st.Snapshot.CycleID
		resp.States = st.Snapshot.EntityStates()
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("[api] Encode response: %v", err)
	}
}
