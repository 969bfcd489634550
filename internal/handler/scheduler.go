package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/model"
)

// SchedulerHandler serves the trigger registry: cron-style entries that
// fire agents. The scheduler loop itself runs outside this service.
type SchedulerHandler struct {
	store *config.Store
}

// NewSchedulerHandler creates a SchedulerHandler.
func NewSchedulerHandler(store *config.Store) *SchedulerHandler {
	return &SchedulerHandler{store: store}
}

// List serves GET /scheduler/triggers.
func (h *SchedulerHandler) List(w http.ResponseWriter, r *http.Request) {
	triggers, err := h.store.ListTriggers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list triggers")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: triggers,
		Meta:     &model.ResponseMeta{Count: len(triggers)},
	})
}

// Create serves POST /scheduler/triggers.
func (h *SchedulerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var trigger model.Trigger
	if err := readJSON(r, &trigger); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(trigger.AgentID) == "" || strings.TrimSpace(trigger.Schedule) == "" {
		writeError(w, http.StatusBadRequest, "agent_id and schedule are required")
		return
	}
	if _, err := h.store.GetAgent(r.Context(), trigger.AgentID); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}
	trigger.IsActive = true
	if err := h.store.CreateTrigger(r.Context(), &trigger); err != nil {
		writeError(w, http.StatusInternalServerError, "trigger could not be created")
		return
	}
	writeJSON(w, http.StatusCreated, trigger)
}

// Delete serves DELETE /scheduler/triggers/{trigger_id}.
func (h *SchedulerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteTrigger(r.Context(), chi.URLParam(r, "trigger_id"))
	if errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trigger not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete trigger")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
