package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

type FailureHandlerHandler struct {
	handlers repos.FailureHandlerRepo
}

func NewFailureHandlerHandler(handlers repos.FailureHandlerRepo) *FailureHandlerHandler {
	return &FailureHandlerHandler{handlers: handlers}
}

func (h *FailureHandlerHandler) find(c *gin.Context, workflowID, id int64) (*types.FailureHandler, bool) {
	fh, err := h.handlers.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return nil, false
	}
	if fh == nil || fh.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("failure handler %d not found in workflow %d", id, workflowID))
		return nil, false
	}
	return fh, true
}

// POST /workflows/:id/failure-handlers
func (h *FailureHandlerHandler) Create(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var fh types.FailureHandler
	if err := c.ShouldBindJSON(&fh); err != nil {
		RespondError(c, apierr.BadRequest("invalid failure handler payload: %v", err))
		return
	}
	if fh.Name == "" {
		RespondError(c, apierr.Unprocessable("failure handler name is required"))
		return
	}
	fh.WorkflowID = workflowID
	if err := h.handlers.Create(c.Request.Context(), nil, &fh); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondCreated(c, fh)
}

// GET /workflows/:id/failure-handlers
func (h *FailureHandlerHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.handlers.List(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/failure-handlers/:handler_id
func (h *FailureHandlerHandler) Get(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	handlerID, ok := pathID(c, "handler_id")
	if !ok {
		return
	}
	fh, ok := h.find(c, workflowID, handlerID)
	if !ok {
		return
	}
	RespondOK(c, fh)
}

// PUT /workflows/:id/failure-handlers/:handler_id
func (h *FailureHandlerHandler) Update(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	handlerID, ok := pathID(c, "handler_id")
	if !ok {
		return
	}
	if _, ok := h.find(c, workflowID, handlerID); !ok {
		return
	}
	var fh types.FailureHandler
	if err := c.ShouldBindJSON(&fh); err != nil {
		RespondError(c, apierr.BadRequest("invalid failure handler payload: %v", err))
		return
	}
	fh.ID = handlerID
	fh.WorkflowID = workflowID
	if err := h.handlers.Update(c.Request.Context(), nil, &fh); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, fh)
}

// DELETE /workflows/:id/failure-handlers/:handler_id
func (h *FailureHandlerHandler) Delete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	handlerID, ok := pathID(c, "handler_id")
	if !ok {
		return
	}
	if _, ok := h.find(c, workflowID, handlerID); !ok {
		return
	}
	if err := h.handlers.Delete(c.Request.Context(), nil, handlerID); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondNoContent(c)
}
