package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/stream"
)

// WorkflowHandler serves the workflow registry and run requests.
type WorkflowHandler struct {
	store  *config.Store
	events *stream.Hub
}

// NewWorkflowHandler creates a WorkflowHandler.
func NewWorkflowHandler(store *config.Store, events *stream.Hub) *WorkflowHandler {
	return &WorkflowHandler{store: store, events: events}
}

// List serves GET /workflows.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.store.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: workflows,
		Meta:     &model.ResponseMeta{Count: len(workflows)},
	})
}

// Run serves POST /workflows/{workflow_id}/run.
func (h *WorkflowHandler) Run(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflow_id")
	if _, err := h.store.GetWorkflow(r.Context(), workflowID); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}
	run := model.WorkflowRun{WorkflowID: workflowID}
	if err := h.store.CreateWorkflowRun(r.Context(), &run); err != nil {
		writeError(w, http.StatusInternalServerError, "run could not be created")
		return
	}
	h.events.Publish(stream.NewEvent("workflow.run.queued", run))
	writeJSON(w, http.StatusAccepted, run)
}
