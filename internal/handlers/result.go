package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
)

type ResultHandler struct {
	results repos.ResultRepo
}

func NewResultHandler(results repos.ResultRepo) *ResultHandler {
	return &ResultHandler{results: results}
}

// GET /workflows/:id/results
// latest_only narrows each job to its current-run result.
func (h *ResultHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.results.List(
		c.Request.Context(), nil,
		workflowID,
		queryInt64Ptr(c, "job_id"),
		queryBool(c, "latest_only"),
		pageFromQuery(c),
	)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}
