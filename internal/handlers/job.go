package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/services"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

type JobHandler struct {
	jobs services.JobService
	hub  *sse.Hub
}

func NewJobHandler(jobs services.JobService, hub *sse.Hub) *JobHandler {
	return &JobHandler{jobs: jobs, hub: hub}
}

// POST /workflows/:id/jobs
// Accepts either a single job object or {"jobs": [...]} for bulk creation.
func (h *JobHandler) Create(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var bulk struct {
		Jobs []services.CreateJobInput `json:"jobs"`
	}
	if err := c.ShouldBindBodyWithJSON(&bulk); err != nil || len(bulk.Jobs) == 0 {
		var single services.CreateJobInput
		if err := c.ShouldBindBodyWithJSON(&single); err != nil {
			RespondError(c, apierr.BadRequest("invalid job payload: %v", err))
			return
		}
		bulk.Jobs = []services.CreateJobInput{single}
	}
	created, err := h.jobs.CreateJobs(c.Request.Context(), workflowID, bulk.Jobs)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "create", Data: gin.H{"count": len(created)}})
	if len(created) == 1 {
		RespondCreated(c, created[0])
		return
	}
	RespondCreated(c, gin.H{"jobs": created})
}

// GET /workflows/:id/jobs
func (h *JobHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	filter := repos.JobFilter{
		WorkflowID:          workflowID,
		NeedsFileID:         queryInt64Ptr(c, "needs_file_id"),
		UpstreamJobID:       queryInt64Ptr(c, "upstream_job_id"),
		ActiveComputeNodeID: queryInt64Ptr(c, "active_compute_node_id"),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := types.ParseJobStatus(raw)
		if err != nil {
			RespondError(c, apierr.BadRequest("invalid status filter: %v", err))
			return
		}
		filter.Status = &status
	}
	env, err := h.jobs.List(c.Request.Context(), filter, pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/jobs/:job_id
func (h *JobHandler) Get(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), workflowID, jobID, queryBool(c, "include_relationships"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, job)
}

// PUT /workflows/:id/jobs/:job_id
func (h *JobHandler) Update(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var input services.UpdateJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, apierr.BadRequest("invalid job payload: %v", err))
		return
	}
	job, err := h.jobs.Update(c.Request.Context(), workflowID, jobID, input)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "update", Data: job})
	RespondOK(c, job)
}

// DELETE /workflows/:id/jobs/:job_id
func (h *JobHandler) Delete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	if err := h.jobs.Delete(c.Request.Context(), workflowID, jobID); err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "delete", Data: gin.H{"job_id": jobID}})
	RespondNoContent(c)
}

// POST /workflows/:id/jobs/:job_id/start
func (h *JobHandler) Start(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var body struct {
		ComputeNodeID int64 `json:"compute_node_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.BadRequest("invalid start payload: %v", err))
		return
	}
	job, err := h.jobs.Start(c.Request.Context(), workflowID, jobID, body.ComputeNodeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "start", Data: job})
	RespondOK(c, job)
}

// POST /workflows/:id/jobs/:job_id/complete
func (h *JobHandler) Complete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var input services.CompleteJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, apierr.BadRequest("invalid completion payload: %v", err))
		return
	}
	job, err := h.jobs.Complete(c.Request.Context(), workflowID, jobID, input)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "complete", Data: job})
	RespondOK(c, job)
}

// POST /workflows/:id/jobs/:job_id/retry
func (h *JobHandler) Retry(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var body struct {
		MaxRetries *int `json:"max_retries,omitempty"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&body)
	job, err := h.jobs.Retry(c.Request.Context(), workflowID, jobID, body.MaxRetries)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "retry", Data: job})
	RespondOK(c, job)
}

// PUT /workflows/:id/jobs/:job_id/status
func (h *JobHandler) ManageStatusChange(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var body struct {
		Status types.JobStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.BadRequest("invalid status payload: %v", err))
		return
	}
	job, err := h.jobs.ManageStatusChange(c.Request.Context(), workflowID, jobID, body.Status)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "jobs", Op: "status_change", Data: job})
	RespondOK(c, job)
}
