package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/sse"
)

type SSEHandler struct {
	hub *sse.Hub
}

func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// GET /workflows/:id/events/stream
func (h *SSEHandler) WorkflowStream(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	client := h.hub.NewClient()
	h.hub.Subscribe(client, sse.WorkflowChannel(workflowID))
	defer h.hub.CloseClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

// GET /events/stream
func (h *SSEHandler) FirehoseStream(c *gin.Context) {
	client := h.hub.NewClient()
	h.hub.Subscribe(client, sse.FirehoseChannel)
	defer h.hub.CloseClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
