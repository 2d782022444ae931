package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

type UserDataHandler struct {
	userData repos.UserDataRepo
	hub      *sse.Hub
}

func NewUserDataHandler(userData repos.UserDataRepo, hub *sse.Hub) *UserDataHandler {
	return &UserDataHandler{userData: userData, hub: hub}
}

func (h *UserDataHandler) find(c *gin.Context, workflowID, id int64) (*types.UserData, bool) {
	ud, err := h.userData.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return nil, false
	}
	if ud == nil || ud.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("user data %d not found in workflow %d", id, workflowID))
		return nil, false
	}
	return ud, true
}

// POST /workflows/:id/user-data
func (h *UserDataHandler) Create(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var ud types.UserData
	if err := c.ShouldBindJSON(&ud); err != nil {
		RespondError(c, apierr.BadRequest("invalid user data payload: %v", err))
		return
	}
	if ud.Name == "" {
		RespondError(c, apierr.Unprocessable("user data name is required"))
		return
	}
	ud.WorkflowID = workflowID
	if err := h.userData.Create(c.Request.Context(), nil, &ud); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "user_data", Op: "create", Data: ud})
	RespondCreated(c, ud)
}

// GET /workflows/:id/user-data
func (h *UserDataHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.userData.List(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/user-data/:user_data_id
func (h *UserDataHandler) Get(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	id, ok := pathID(c, "user_data_id")
	if !ok {
		return
	}
	ud, ok := h.find(c, workflowID, id)
	if !ok {
		return
	}
	RespondOK(c, ud)
}

// PUT /workflows/:id/user-data/:user_data_id
func (h *UserDataHandler) Update(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	id, ok := pathID(c, "user_data_id")
	if !ok {
		return
	}
	if _, ok := h.find(c, workflowID, id); !ok {
		return
	}
	var ud types.UserData
	if err := c.ShouldBindJSON(&ud); err != nil {
		RespondError(c, apierr.BadRequest("invalid user data payload: %v", err))
		return
	}
	ud.ID = id
	ud.WorkflowID = workflowID
	if err := h.userData.Update(c.Request.Context(), nil, &ud); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "user_data", Op: "update", Data: ud})
	RespondOK(c, ud)
}

// DELETE /workflows/:id/user-data/:user_data_id
func (h *UserDataHandler) Delete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	id, ok := pathID(c, "user_data_id")
	if !ok {
		return
	}
	if _, ok := h.find(c, workflowID, id); !ok {
		return
	}
	if err := h.userData.Delete(c.Request.Context(), nil, id); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "user_data", Op: "delete", Data: gin.H{"user_data_id": id}})
	RespondNoContent(c)
}
