package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/stream"
)

// AgentHandler serves the agent registry CRUD and the invoke/batch
// operations. Invocations are acknowledged synchronously and executed
// downstream; progress is published on the event stream.
type AgentHandler struct {
	store  *config.Store
	events *stream.Hub
	logger *slog.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(store *config.Store, events *stream.Hub, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{store: store, events: events, logger: logger}
}

// List serves GET /agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: agents,
		Meta:     &model.ResponseMeta{Count: len(agents)},
	})
}

// Create serves POST /agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var agent model.Agent
	if err := readJSON(r, &agent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(agent.Name) == "" {
		writeError(w, http.StatusBadRequest, "agent name is required")
		return
	}
	agent.IsActive = true
	if err := h.store.CreateAgent(r.Context(), &agent); err != nil {
		writeError(w, http.StatusConflict, "agent could not be created")
		return
	}
	h.events.Publish(stream.NewEvent("agent.created", agent))
	writeJSON(w, http.StatusCreated, agent)
}

// Get serves GET /agents/{agent_id}.
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.store.GetAgent(r.Context(), chi.URLParam(r, "agent_id"))
	if errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// Update serves PUT /agents/{agent_id}.
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var agent model.Agent
	if err := readJSON(r, &agent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	agent.ID = chi.URLParam(r, "agent_id")
	err := h.store.UpdateAgent(r.Context(), &agent)
	if errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}
	h.events.Publish(stream.NewEvent("agent.updated", agent))
	writeJSON(w, http.StatusOK, agent)
}

// Delete serves DELETE /agents/{agent_id}.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agent_id")
	err := h.store.DeleteAgent(r.Context(), id)
	if errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}
	h.events.Publish(stream.NewEvent("agent.deleted", map[string]string{"id": id}))
	w.WriteHeader(http.StatusNoContent)
}

// Invoke serves POST /agent/invoke.
func (h *AgentHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	var req model.InvokeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := h.invokeOne(r, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// Batch serves POST /agent/batch.
func (h *AgentHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req model.BatchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Invocations) == 0 {
		writeError(w, http.StatusBadRequest, "batch requires at least one invocation")
		return
	}
	results := make([]model.InvokeResult, 0, len(req.Invocations))
	for _, inv := range req.Invocations {
		result, err := h.invokeOne(r, inv)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		results = append(results, result)
	}
	writeJSON(w, http.StatusAccepted, model.ListResponse{
		Resource: results,
		Meta:     &model.ResponseMeta{Count: len(results)},
	})
}

func (h *AgentHandler) invokeOne(r *http.Request, req model.InvokeRequest) (model.InvokeResult, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return model.InvokeResult{}, errors.New("agent_id is required")
	}
	if _, err := h.store.GetAgent(r.Context(), req.AgentID); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return model.InvokeResult{}, errors.New("agent not found")
		}
		return model.InvokeResult{}, errors.New("failed to load agent")
	}
	result := model.InvokeResult{
		InvocationID: uuid.Must(uuid.NewV7()).String(),
		AgentID:      req.AgentID,
		Status:       "queued",
	}
	h.events.Publish(stream.NewEvent("agent.invoked", map[string]interface{}{
		"invocation_id": result.InvocationID,
		"agent_id":      result.AgentID,
		"input":         req.Input,
	}))
	return result, nil
}
