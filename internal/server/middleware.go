package server

import (
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/handlers"
	"github.com/NREL/torc-sub002/internal/services"
)

func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Torc-User"},
		AllowCredentials: true,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// RequireWorkflowAccess gates workflow-scoped routes. With enforcement off
// the service call is a no-op; with it on, unknown callers are rejected.
func RequireWorkflowAccess(workflows services.WorkflowService) gin.HandlerFunc {
	return func(c *gin.Context) {
		workflowID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.Next()
			return
		}
		user := c.GetHeader("X-Torc-User")
		if user == "" {
			user = c.Query("user")
		}
		if err := workflows.CheckAccess(c.Request.Context(), user, workflowID); err != nil {
			if apierr.Status(err) == 403 {
				handlers.RespondError(c, err)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
