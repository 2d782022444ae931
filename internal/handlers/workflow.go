package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/services"
	"github.com/NREL/torc-sub002/internal/sse"
)

type WorkflowHandler struct {
	workflows services.WorkflowService
	graph     services.GraphService
	hub       *sse.Hub
}

func NewWorkflowHandler(workflows services.WorkflowService, graph services.GraphService, hub *sse.Hub) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, graph: graph, hub: hub}
}

// POST /workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	var input services.CreateWorkflowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, apierr.BadRequest("invalid workflow payload: %v", err))
		return
	}
	if input.User == "" {
		input.User = requestUser(c)
	}
	wf, err := h.workflows.Create(c.Request.Context(), input)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: wf.ID, Category: "workflows", Op: "create", Data: wf})
	RespondCreated(c, wf)
}

// GET /workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	filter := repos.WorkflowFilter{User: c.Query("user")}
	if raw := c.Query("is_archived"); raw != "" {
		v := raw == "true"
		filter.IsArchived = &v
	}
	env, err := h.workflows.List(c.Request.Context(), filter, pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	wf, err := h.workflows.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, wf)
}

// PUT /workflows/:id
func (h *WorkflowHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.UpdateWorkflowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, apierr.BadRequest("invalid workflow payload: %v", err))
		return
	}
	wf, err := h.workflows.Update(c.Request.Context(), id, input)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: id, Category: "workflows", Op: "update", Data: wf})
	RespondOK(c, wf)
}

// DELETE /workflows/:id
func (h *WorkflowHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.workflows.Delete(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: id, Category: "workflows", Op: "delete"})
	RespondNoContent(c)
}

// GET /workflows/:id/status
func (h *WorkflowHandler) Status(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	summary, err := h.workflows.StatusSummary(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, summary)
}

// GET /workflows/:id/is-complete
func (h *WorkflowHandler) IsComplete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	done, err := h.workflows.IsComplete(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"is_complete": done})
}

// POST /workflows/:id/start
func (h *WorkflowHandler) Start(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.workflows.Start(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: id, Category: "workflows", Op: "start"})
	RespondOK(c, gin.H{"started": id})
}

// POST /workflows/:id/initialize-jobs
func (h *WorkflowHandler) InitializeJobs(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	onlyUninitialized := queryBool(c, "only_uninitialized")
	clearEphemeral := queryBoolDefault(c, "clear_ephemeral_user_data", true)
	result, err := h.graph.InitializeJobs(c.Request.Context(), id, onlyUninitialized, clearEphemeral)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: id, Category: "jobs", Op: "initialize", Data: result})
	RespondOK(c, result)
}

// POST /workflows/:id/reinitialize
func (h *WorkflowHandler) Reinitialize(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	clearEphemeral := queryBoolDefault(c, "clear_ephemeral_user_data", true)
	result, err := h.workflows.Reinitialize(c.Request.Context(), id, clearEphemeral)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: id, Category: "jobs", Op: "reinitialize", Data: result})
	RespondOK(c, result)
}

// POST /workflows/:id/reset-jobs
func (h *WorkflowHandler) ResetJobStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	failedOnly := queryBool(c, "failed_only")
	if err := h.graph.ResetJobStatus(c.Request.Context(), id, failedOnly); err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: id, Category: "jobs", Op: "reset"})
	RespondOK(c, gin.H{"reset": id, "failed_only": failedOnly})
}

// POST /workflows/:id/process-changed-job-inputs
func (h *WorkflowHandler) ProcessChangedJobInputs(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	dryRun := queryBool(c, "dry_run")
	names, err := h.graph.ProcessChangedJobInputs(c.Request.Context(), id, dryRun)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !dryRun && len(names) > 0 {
		h.hub.Publish(sse.BroadcastEvent{WorkflowID: id, Category: "jobs", Op: "inputs_changed", Data: names})
	}
	RespondOK(c, gin.H{"reinitialized_jobs": names, "dry_run": dryRun})
}
