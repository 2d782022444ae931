package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
	"github.com/NREL/torc-sub002/internal/utils"
)

type ResourceRequirementsHandler struct {
	requirements repos.ResourceRequirementsRepo
	hub          *sse.Hub
}

func NewResourceRequirementsHandler(requirements repos.ResourceRequirementsRepo, hub *sse.Hub) *ResourceRequirementsHandler {
	return &ResourceRequirementsHandler{requirements: requirements, hub: hub}
}

// normalize derives the canonical byte/second columns the claim engine
// filters on from the human-readable memory and runtime strings.
func normalize(rr *types.ResourceRequirements) error {
	if rr.Memory == "" {
		rr.Memory = "1m"
	}
	if rr.Runtime == "" {
		rr.Runtime = "PT1M"
	}
	memBytes, err := utils.ParseMemoryBytes(rr.Memory)
	if err != nil {
		return apierr.Unprocessable("invalid memory %q: %v", rr.Memory, err)
	}
	runtimeS, err := utils.ParseISO8601Duration(rr.Runtime)
	if err != nil {
		return apierr.Unprocessable("invalid runtime %q: %v", rr.Runtime, err)
	}
	rr.MemoryBytes = memBytes
	rr.RuntimeS = runtimeS
	if rr.NumCPUs <= 0 {
		rr.NumCPUs = 1
	}
	if rr.NumNodes <= 0 {
		rr.NumNodes = 1
	}
	return nil
}

// POST /workflows/:id/resource-requirements
func (h *ResourceRequirementsHandler) Create(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var rr types.ResourceRequirements
	if err := c.ShouldBindJSON(&rr); err != nil {
		RespondError(c, apierr.BadRequest("invalid resource requirements payload: %v", err))
		return
	}
	if rr.Name == "" {
		RespondError(c, apierr.Unprocessable("resource requirements name is required"))
		return
	}
	rr.WorkflowID = workflowID
	if err := normalize(&rr); err != nil {
		RespondError(c, err)
		return
	}
	if err := h.requirements.Create(c.Request.Context(), nil, &rr); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "resource_requirements", Op: "create", Data: rr})
	RespondCreated(c, rr)
}

// GET /workflows/:id/resource-requirements
func (h *ResourceRequirementsHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.requirements.List(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/resource-requirements/:rr_id
func (h *ResourceRequirementsHandler) Get(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	rrID, ok := pathID(c, "rr_id")
	if !ok {
		return
	}
	rr, err := h.requirements.GetByID(c.Request.Context(), nil, rrID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if rr == nil || rr.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("resource requirements %d not found in workflow %d", rrID, workflowID))
		return
	}
	RespondOK(c, rr)
}

// PUT /workflows/:id/resource-requirements/:rr_id
func (h *ResourceRequirementsHandler) Update(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	rrID, ok := pathID(c, "rr_id")
	if !ok {
		return
	}
	existing, err := h.requirements.GetByID(c.Request.Context(), nil, rrID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if existing == nil || existing.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("resource requirements %d not found in workflow %d", rrID, workflowID))
		return
	}
	var rr types.ResourceRequirements
	if err := c.ShouldBindJSON(&rr); err != nil {
		RespondError(c, apierr.BadRequest("invalid resource requirements payload: %v", err))
		return
	}
	rr.ID = rrID
	rr.WorkflowID = workflowID
	if err := normalize(&rr); err != nil {
		RespondError(c, err)
		return
	}
	if err := h.requirements.Update(c.Request.Context(), nil, &rr); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "resource_requirements", Op: "update", Data: rr})
	RespondOK(c, rr)
}

// DELETE /workflows/:id/resource-requirements/:rr_id
func (h *ResourceRequirementsHandler) Delete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	rrID, ok := pathID(c, "rr_id")
	if !ok {
		return
	}
	rr, err := h.requirements.GetByID(c.Request.Context(), nil, rrID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if rr == nil || rr.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("resource requirements %d not found in workflow %d", rrID, workflowID))
		return
	}
	if err := h.requirements.Delete(c.Request.Context(), nil, rrID); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "resource_requirements", Op: "delete", Data: gin.H{"resource_requirements_id": rrID}})
	RespondNoContent(c)
}
