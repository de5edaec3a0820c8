package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/gateway"
	"github.com/nidhogg/hivemind/internal/orchestrator"
	"github.com/nidhogg/hivemind/internal/pool"
	"github.com/nidhogg/hivemind/internal/store"
)

// Handler holds dependencies for HTTP handlers. store and broadcaster are
// optional; endpoints needing them answer 503 when absent.
type Handler struct {
	coordinator *orchestrator.Coordinator
	dispatcher  *orchestrator.Dispatcher
	pool        *pool.Pool
	store       *store.Store
	broadcaster *gateway.Broadcaster
	hub         *Hub
	logger      *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	coordinator *orchestrator.Coordinator,
	dispatcher *orchestrator.Dispatcher,
	p *pool.Pool,
	st *store.Store,
	broadcaster *gateway.Broadcaster,
	hub *Hub,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		coordinator: coordinator,
		dispatcher:  dispatcher,
		pool:        p,
		store:       st,
		broadcaster: broadcaster,
		hub:         hub,
		logger:      logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.healthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/agents", h.listAgents)
		r.Get("/agents/{id}", h.getAgent)
		r.Get("/teams", h.listTeams)
		r.Get("/concurrency", h.concurrencyStatus)

		r.Post("/completions", h.createCompletion)
		r.Get("/completions", h.listCompletions)
		r.Get("/completions/{id}", h.getCompletion)
		r.Get("/completions/{id}/result", h.getCompletionResult)
		r.Delete("/completions/{id}", h.cancelCompletion)
		r.Post("/completions/{id}/input", h.addCompletionInput)

		r.Post("/sessions", h.createSession)
		r.Get("/sessions/{id}", h.getSession)
		r.Delete("/sessions/{id}", h.endSession)
		r.Get("/sessions/{id}/messages", h.getSessionMessages)

		r.Get("/notifications", h.listNotifications)

		if h.hub != nil {
			r.Get("/ws", h.hub.ServeWS)
		}
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "hivemind"})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Agents())
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := h.pool.AgentSnapshot(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.TeamSnapshots())
}

func (h *Handler) concurrencyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.Status())
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	if h.broadcaster == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not configured"})
		return
	}
	writeJSON(w, http.StatusOK, h.broadcaster.History())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
