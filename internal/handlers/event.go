package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
)

type EventHandler struct {
	events repos.EventRepo
}

func NewEventHandler(events repos.EventRepo) *EventHandler {
	return &EventHandler{events: events}
}

// GET /workflows/:id/events?after_id=N
// Polling clients pass the last event id they saw.
func (h *EventHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.events.List(c.Request.Context(), nil, workflowID, queryInt64Ptr(c, "after_id"), pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}
