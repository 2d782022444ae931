package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/services"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

type ComputeNodeHandler struct {
	nodes services.ComputeNodeService
	hub   *sse.Hub
}

func NewComputeNodeHandler(nodes services.ComputeNodeService, hub *sse.Hub) *ComputeNodeHandler {
	return &ComputeNodeHandler{nodes: nodes, hub: hub}
}

// POST /workflows/:id/compute-nodes
func (h *ComputeNodeHandler) Register(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var node types.ComputeNode
	if err := c.ShouldBindJSON(&node); err != nil {
		RespondError(c, apierr.BadRequest("invalid compute node payload: %v", err))
		return
	}
	registered, err := h.nodes.Register(c.Request.Context(), workflowID, &node)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "compute_nodes", Op: "register", Data: registered})
	RespondCreated(c, registered)
}

// GET /workflows/:id/compute-nodes
func (h *ComputeNodeHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.nodes.List(c.Request.Context(), workflowID, queryBool(c, "active_only"), pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/compute-nodes/:node_id
func (h *ComputeNodeHandler) Get(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	nodeID, ok := pathID(c, "node_id")
	if !ok {
		return
	}
	node, err := h.nodes.Get(c.Request.Context(), workflowID, nodeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, node)
}

// POST /workflows/:id/compute-nodes/:node_id/deactivate
func (h *ComputeNodeHandler) Deactivate(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	nodeID, ok := pathID(c, "node_id")
	if !ok {
		return
	}
	node, err := h.nodes.Deactivate(c.Request.Context(), workflowID, nodeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "compute_nodes", Op: "deactivate", Data: node})
	RespondOK(c, node)
}
