package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/services"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

type ClaimHandler struct {
	claims services.ClaimService
	hub    *sse.Hub
}

func NewClaimHandler(claims services.ClaimService, hub *sse.Hub) *ClaimHandler {
	return &ClaimHandler{claims: claims, hub: hub}
}

// POST /workflows/:id/claim-next-jobs
func (h *ClaimHandler) ClaimNextJobs(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 1)
	result, err := h.claims.ClaimNextJobs(c.Request.Context(), workflowID, limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	if len(result.Jobs) > 0 {
		h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "claim", Data: gin.H{"count": len(result.Jobs)}})
	}
	RespondOK(c, result)
}

// POST /workflows/:id/claim-jobs
func (h *ClaimHandler) ClaimJobsBasedOnResources(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Resources            types.ComputeNodesResources `json:"resources"`
		Limit                int                         `json:"limit"`
		SortMethod           string                      `json:"sort_method"`
		StrictSchedulerMatch bool                        `json:"strict_scheduler_match"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.BadRequest("invalid claim payload: %v", err))
		return
	}
	sortMethod, err := services.ParseSortMethod(body.SortMethod)
	if err != nil {
		RespondError(c, apierr.BadRequest("%v", err))
		return
	}
	result, err := h.claims.ClaimJobsBasedOnResources(c.Request.Context(), workflowID, body.Resources, body.Limit, sortMethod, body.StrictSchedulerMatch)
	if err != nil {
		RespondError(c, err)
		return
	}
	if len(result.Jobs) > 0 {
		h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "claim", Data: gin.H{"count": len(result.Jobs)}})
	}
	RespondOK(c, result)
}
