package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/services"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

type ActionHandler struct {
	actions services.ActionService
	hub     *sse.Hub
}

func NewActionHandler(actions services.ActionService, hub *sse.Hub) *ActionHandler {
	return &ActionHandler{actions: actions, hub: hub}
}

// POST /workflows/:id/actions
func (h *ActionHandler) Create(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.CreateActionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, apierr.BadRequest("invalid action payload: %v", err))
		return
	}
	action, err := h.actions.Create(c.Request.Context(), workflowID, input)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "actions", Op: "create", Data: action})
	RespondCreated(c, action)
}

// GET /workflows/:id/actions
func (h *ActionHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.actions.List(c.Request.Context(), workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/actions/:action_id
func (h *ActionHandler) Get(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	actionID, ok := pathID(c, "action_id")
	if !ok {
		return
	}
	action, err := h.actions.Get(c.Request.Context(), workflowID, actionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, action)
}

// DELETE /workflows/:id/actions/:action_id
func (h *ActionHandler) Delete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	actionID, ok := pathID(c, "action_id")
	if !ok {
		return
	}
	if err := h.actions.Delete(c.Request.Context(), workflowID, actionID); err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "actions", Op: "delete", Data: gin.H{"action_id": actionID}})
	RespondNoContent(c)
}

// GET /workflows/:id/actions/pending?trigger_types=on_jobs_ready,on_worker_start
func (h *ActionHandler) GetPending(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var triggers []types.TriggerType
	if raw := c.Query("trigger_types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			trigger := types.TriggerType(strings.TrimSpace(part))
			if !trigger.Valid() {
				RespondError(c, apierr.BadRequest("invalid trigger type %q", part))
				return
			}
			triggers = append(triggers, trigger)
		}
	}
	actions, err := h.actions.GetPending(c.Request.Context(), workflowID, triggers)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"actions": actions})
}

// POST /workflows/:id/actions/:action_id/claim
func (h *ActionHandler) Claim(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	actionID, ok := pathID(c, "action_id")
	if !ok {
		return
	}
	var body struct {
		ComputeNodeID *int64 `json:"compute_node_id,omitempty"`
	}
	// Body is optional; local runners claim without a registered node.
	_ = c.ShouldBindJSON(&body)
	action, err := h.actions.Claim(c.Request.Context(), workflowID, actionID, body.ComputeNodeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "actions", Op: "claim", Data: action})
	RespondOK(c, action)
}
