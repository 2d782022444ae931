package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

type RemoteWorkerHandler struct {
	workers repos.RemoteWorkerRepo
}

func NewRemoteWorkerHandler(workers repos.RemoteWorkerRepo) *RemoteWorkerHandler {
	return &RemoteWorkerHandler{workers: workers}
}

// POST /workflows/:id/remote-workers
// Registration is idempotent per (worker_id, workflow_id).
func (h *RemoteWorkerHandler) Register(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var worker types.RemoteWorker
	if err := c.ShouldBindJSON(&worker); err != nil {
		RespondError(c, apierr.BadRequest("invalid remote worker payload: %v", err))
		return
	}
	if worker.WorkerID == "" {
		RespondError(c, apierr.Unprocessable("worker_id is required"))
		return
	}
	worker.WorkflowID = workflowID
	if err := h.workers.Upsert(c.Request.Context(), nil, &worker); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondCreated(c, worker)
}

// GET /workflows/:id/remote-workers
func (h *RemoteWorkerHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.workers.List(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// DELETE /workflows/:id/remote-workers/:worker_id
func (h *RemoteWorkerHandler) Delete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	workerID, ok := pathID(c, "worker_id")
	if !ok {
		return
	}
	worker, err := h.workers.GetByID(c.Request.Context(), nil, workerID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if worker == nil || worker.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("remote worker %d not found in workflow %d", workerID, workflowID))
		return
	}
	if err := h.workers.Delete(c.Request.Context(), nil, workerID); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondNoContent(c)
}
