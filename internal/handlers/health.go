package handlers

import (
	"github.com/gin-gonic/gin"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Ping(c *gin.Context) {
	RespondOK(c, gin.H{"message": "pong"})
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	RespondOK(c, gin.H{"status": "ok"})
}

func (h *HealthHandler) Version(c *gin.Context) {
	RespondOK(c, gin.H{"version": Version})
}
