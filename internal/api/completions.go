package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/orchestrator"
)

type completionRequest struct {
	Prompt    string `json:"prompt"`
	Priority  string `json:"priority,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

type liveInputRequest struct {
	Text string `json:"text"`
}

// createCompletion submits a prompt and returns immediately; the pipeline
// runs in the background. Poll the task or subscribe on the websocket for
// progress.
func (h *Handler) createCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	t, err := h.coordinator.SubmitTask(r.Context(), req.Prompt,
		orchestrator.ParsePriority(req.Priority), req.SessionID, req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.logger.Info("completion submitted",
		zap.String("task", t.ID),
		zap.String("session", req.SessionID))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": t.ID,
		"state":   string(t.State),
	})
}

// listCompletions filters the in-memory task table by session and state.
func (h *Handler) listCompletions(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	state := r.URL.Query().Get("state")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var tasks []*orchestrator.Task
	if sessionID != "" {
		tasks = h.coordinator.TasksBySession(sessionID)
	} else {
		tasks = h.coordinator.Tasks()
	}
	if state != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.State) == state {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	if len(tasks) > limit {
		tasks = tasks[len(tasks)-limit:]
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) getCompletion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := h.coordinator.Task(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// getCompletionResult returns the synthesized response once the task is
// terminal, 425 before that.
func (h *Handler) getCompletionResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := h.coordinator.Task(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	if !t.State.Terminal() {
		writeJSON(w, http.StatusTooEarly, map[string]string{
			"error": "task still in progress",
			"state": string(t.State),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":  t.ID,
		"state":    t.State,
		"response": t.Synthesized,
		"error":    t.Error,
		"results":  t.Results,
	})
}

// cancelCompletion cancels a running task: 204 on success, 409 when the task
// is already terminal.
func (h *Handler) cancelCompletion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.coordinator.Task(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	if !h.coordinator.CancelTask(r.Context(), id) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "task already finished"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// addCompletionInput queues a user follow-up for a task's planning dialogue.
func (h *Handler) addCompletionInput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req liveInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	t, ok := h.coordinator.Task(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	if t.State.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "task already finished"})
		return
	}
	h.coordinator.AddLiveInput(id, req.Text)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "queued"})
}
