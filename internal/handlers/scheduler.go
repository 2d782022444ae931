package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

type SchedulerHandler struct {
	schedulers repos.SchedulerRepo
	hub        *sse.Hub
}

func NewSchedulerHandler(schedulers repos.SchedulerRepo, hub *sse.Hub) *SchedulerHandler {
	return &SchedulerHandler{schedulers: schedulers, hub: hub}
}

// POST /workflows/:id/local-schedulers
func (h *SchedulerHandler) CreateLocal(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var s types.LocalScheduler
	if err := c.ShouldBindJSON(&s); err != nil {
		RespondError(c, apierr.BadRequest("invalid scheduler payload: %v", err))
		return
	}
	s.WorkflowID = workflowID
	if err := h.schedulers.CreateLocal(c.Request.Context(), nil, &s); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "schedulers", Op: "create", Data: s})
	RespondCreated(c, s)
}

// GET /workflows/:id/local-schedulers
func (h *SchedulerHandler) ListLocal(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.schedulers.ListLocal(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/local-schedulers/:scheduler_id
func (h *SchedulerHandler) GetLocal(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	schedulerID, ok := pathID(c, "scheduler_id")
	if !ok {
		return
	}
	s, err := h.schedulers.GetLocal(c.Request.Context(), nil, schedulerID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if s == nil || s.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("local scheduler %d not found in workflow %d", schedulerID, workflowID))
		return
	}
	RespondOK(c, s)
}

// DELETE /workflows/:id/local-schedulers/:scheduler_id
func (h *SchedulerHandler) DeleteLocal(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	schedulerID, ok := pathID(c, "scheduler_id")
	if !ok {
		return
	}
	s, err := h.schedulers.GetLocal(c.Request.Context(), nil, schedulerID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if s == nil || s.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("local scheduler %d not found in workflow %d", schedulerID, workflowID))
		return
	}
	if err := h.schedulers.DeleteLocal(c.Request.Context(), nil, schedulerID); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondNoContent(c)
}

// POST /workflows/:id/slurm-schedulers
func (h *SchedulerHandler) CreateSlurm(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var s types.SlurmScheduler
	if err := c.ShouldBindJSON(&s); err != nil {
		RespondError(c, apierr.BadRequest("invalid scheduler payload: %v", err))
		return
	}
	if s.Account == "" {
		RespondError(c, apierr.Unprocessable("slurm scheduler account is required"))
		return
	}
	s.WorkflowID = workflowID
	if err := h.schedulers.CreateSlurm(c.Request.Context(), nil, &s); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "schedulers", Op: "create", Data: s})
	RespondCreated(c, s)
}

// GET /workflows/:id/slurm-schedulers
func (h *SchedulerHandler) ListSlurm(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.schedulers.ListSlurm(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/slurm-schedulers/:scheduler_id
func (h *SchedulerHandler) GetSlurm(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	schedulerID, ok := pathID(c, "scheduler_id")
	if !ok {
		return
	}
	s, err := h.schedulers.GetSlurm(c.Request.Context(), nil, schedulerID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if s == nil || s.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("slurm scheduler %d not found in workflow %d", schedulerID, workflowID))
		return
	}
	RespondOK(c, s)
}

// DELETE /workflows/:id/slurm-schedulers/:scheduler_id
func (h *SchedulerHandler) DeleteSlurm(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	schedulerID, ok := pathID(c, "scheduler_id")
	if !ok {
		return
	}
	s, err := h.schedulers.GetSlurm(c.Request.Context(), nil, schedulerID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if s == nil || s.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("slurm scheduler %d not found in workflow %d", schedulerID, workflowID))
		return
	}
	if err := h.schedulers.DeleteSlurm(c.Request.Context(), nil, schedulerID); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondNoContent(c)
}

// POST /workflows/:id/scheduled-compute-nodes
func (h *SchedulerHandler) CreateScheduledNode(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var n types.ScheduledComputeNode
	if err := c.ShouldBindJSON(&n); err != nil {
		RespondError(c, apierr.BadRequest("invalid scheduled node payload: %v", err))
		return
	}
	n.WorkflowID = workflowID
	if n.Status == "" {
		n.Status = types.ScheduledNodePending
	}
	if err := h.schedulers.CreateScheduledNode(c.Request.Context(), nil, &n); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "scheduled_compute_nodes", Op: "create", Data: n})
	RespondCreated(c, n)
}

// GET /workflows/:id/scheduled-compute-nodes
func (h *SchedulerHandler) ListScheduledNodes(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.schedulers.ListScheduledNodes(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// PUT /workflows/:id/scheduled-compute-nodes/:node_id/status
func (h *SchedulerHandler) UpdateScheduledNodeStatus(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	nodeID, ok := pathID(c, "node_id")
	if !ok {
		return
	}
	var body struct {
		Status types.ScheduledComputeNodeStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.BadRequest("invalid status payload: %v", err))
		return
	}
	switch body.Status {
	case types.ScheduledNodePending, types.ScheduledNodeSubmitted, types.ScheduledNodeActive, types.ScheduledNodeComplete:
	default:
		RespondError(c, apierr.Unprocessable("invalid scheduled node status %q", body.Status))
		return
	}
	n, err := h.schedulers.GetScheduledNode(c.Request.Context(), nil, nodeID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if n == nil || n.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("scheduled node %d not found in workflow %d", nodeID, workflowID))
		return
	}
	if err := h.schedulers.UpdateScheduledNodeStatus(c.Request.Context(), nil, nodeID, body.Status); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	n.Status = body.Status
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "scheduled_compute_nodes", Op: "status_change", Data: n})
	RespondOK(c, n)
}
