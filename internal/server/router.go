package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/NREL/torc-sub002/internal/handlers"
	"github.com/NREL/torc-sub002/internal/services"
)

// BasePath is the versioned prefix every API route lives under.
const BasePath = "/torc-service/v1"

type RouterConfig struct {
	WorkflowService services.WorkflowService

	HealthHandler         *handlers.HealthHandler
	WorkflowHandler       *handlers.WorkflowHandler
	JobHandler            *handlers.JobHandler
	ClaimHandler          *handlers.ClaimHandler
	ActionHandler         *handlers.ActionHandler
	FileHandler           *handlers.FileHandler
	UserDataHandler       *handlers.UserDataHandler
	RequirementsHandler   *handlers.ResourceRequirementsHandler
	SchedulerHandler      *handlers.SchedulerHandler
	ResultHandler         *handlers.ResultHandler
	EventHandler          *handlers.EventHandler
	ComputeNodeHandler    *handlers.ComputeNodeHandler
	RemoteWorkerHandler   *handlers.RemoteWorkerHandler
	FailureHandlerHandler *handlers.FailureHandlerHandler
	SSEHandler            *handlers.SSEHandler

	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(otelgin.Middleware("torc-server"))

	api := r.Group(BasePath)

	api.GET("/ping", cfg.HealthHandler.Ping)
	api.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	api.GET("/version", cfg.HealthHandler.Version)

	api.POST("/workflows", cfg.WorkflowHandler.Create)
	api.GET("/workflows", cfg.WorkflowHandler.List)

	if cfg.SSEHandler != nil {
		api.GET("/events/stream", cfg.SSEHandler.FirehoseStream)
	}

	wf := api.Group("/workflows/:id")
	if cfg.WorkflowService != nil {
		wf.Use(RequireWorkflowAccess(cfg.WorkflowService))
	}
	{
		wf.GET("", cfg.WorkflowHandler.Get)
		wf.PUT("", cfg.WorkflowHandler.Update)
		wf.DELETE("", cfg.WorkflowHandler.Delete)
		wf.GET("/status", cfg.WorkflowHandler.Status)
		wf.GET("/is-complete", cfg.WorkflowHandler.IsComplete)
		wf.POST("/start", cfg.WorkflowHandler.Start)
		wf.POST("/initialize-jobs", cfg.WorkflowHandler.InitializeJobs)
		wf.POST("/reinitialize", cfg.WorkflowHandler.Reinitialize)
		wf.POST("/reset-jobs", cfg.WorkflowHandler.ResetJobStatus)
		wf.POST("/process-changed-job-inputs", cfg.WorkflowHandler.ProcessChangedJobInputs)

		wf.POST("/jobs", cfg.JobHandler.Create)
		wf.GET("/jobs", cfg.JobHandler.List)
		wf.GET("/jobs/:job_id", cfg.JobHandler.Get)
		wf.PUT("/jobs/:job_id", cfg.JobHandler.Update)
		wf.DELETE("/jobs/:job_id", cfg.JobHandler.Delete)
		wf.POST("/jobs/:job_id/start", cfg.JobHandler.Start)
		wf.POST("/jobs/:job_id/complete", cfg.JobHandler.Complete)
		wf.POST("/jobs/:job_id/retry", cfg.JobHandler.Retry)
		wf.PUT("/jobs/:job_id/status", cfg.JobHandler.ManageStatusChange)

		wf.POST("/claim-next-jobs", cfg.ClaimHandler.ClaimNextJobs)
		wf.POST("/claim-jobs", cfg.ClaimHandler.ClaimJobsBasedOnResources)

		wf.POST("/actions", cfg.ActionHandler.Create)
		wf.GET("/actions", cfg.ActionHandler.List)
		wf.GET("/actions/pending", cfg.ActionHandler.GetPending)
		wf.GET("/actions/:action_id", cfg.ActionHandler.Get)
		wf.DELETE("/actions/:action_id", cfg.ActionHandler.Delete)
		wf.POST("/actions/:action_id/claim", cfg.ActionHandler.Claim)

		wf.POST("/files", cfg.FileHandler.Create)
		wf.GET("/files", cfg.FileHandler.List)
		wf.GET("/files/:file_id", cfg.FileHandler.Get)
		wf.PUT("/files/:file_id", cfg.FileHandler.Update)
		wf.DELETE("/files/:file_id", cfg.FileHandler.Delete)

		wf.POST("/user-data", cfg.UserDataHandler.Create)
		wf.GET("/user-data", cfg.UserDataHandler.List)
		wf.GET("/user-data/:user_data_id", cfg.UserDataHandler.Get)
		wf.PUT("/user-data/:user_data_id", cfg.UserDataHandler.Update)
		wf.DELETE("/user-data/:user_data_id", cfg.UserDataHandler.Delete)

		wf.POST("/resource-requirements", cfg.RequirementsHandler.Create)
		wf.GET("/resource-requirements", cfg.RequirementsHandler.List)
		wf.GET("/resource-requirements/:rr_id", cfg.RequirementsHandler.Get)
		wf.PUT("/resource-requirements/:rr_id", cfg.RequirementsHandler.Update)
		wf.DELETE("/resource-requirements/:rr_id", cfg.RequirementsHandler.Delete)

		wf.POST("/local-schedulers", cfg.SchedulerHandler.CreateLocal)
		wf.GET("/local-schedulers", cfg.SchedulerHandler.ListLocal)
		wf.GET("/local-schedulers/:scheduler_id", cfg.SchedulerHandler.GetLocal)
		wf.DELETE("/local-schedulers/:scheduler_id", cfg.SchedulerHandler.DeleteLocal)

		wf.POST("/slurm-schedulers", cfg.SchedulerHandler.CreateSlurm)
		wf.GET("/slurm-schedulers", cfg.SchedulerHandler.ListSlurm)
		wf.GET("/slurm-schedulers/:scheduler_id", cfg.SchedulerHandler.GetSlurm)
		wf.DELETE("/slurm-schedulers/:scheduler_id", cfg.SchedulerHandler.DeleteSlurm)

		wf.POST("/scheduled-compute-nodes", cfg.SchedulerHandler.CreateScheduledNode)
		wf.GET("/scheduled-compute-nodes", cfg.SchedulerHandler.ListScheduledNodes)
		wf.PUT("/scheduled-compute-nodes/:node_id/status", cfg.SchedulerHandler.UpdateScheduledNodeStatus)

		wf.GET("/results", cfg.ResultHandler.List)
		wf.GET("/events", cfg.EventHandler.List)
		if cfg.SSEHandler != nil {
			wf.GET("/events/stream", cfg.SSEHandler.WorkflowStream)
		}

		wf.POST("/compute-nodes", cfg.ComputeNodeHandler.Register)
		wf.GET("/compute-nodes", cfg.ComputeNodeHandler.List)
		wf.GET("/compute-nodes/:node_id", cfg.ComputeNodeHandler.Get)
		wf.POST("/compute-nodes/:node_id/deactivate", cfg.ComputeNodeHandler.Deactivate)

		wf.POST("/remote-workers", cfg.RemoteWorkerHandler.Register)
		wf.GET("/remote-workers", cfg.RemoteWorkerHandler.List)
		wf.DELETE("/remote-workers/:worker_id", cfg.RemoteWorkerHandler.Delete)

		wf.POST("/failure-handlers", cfg.FailureHandlerHandler.Create)
		wf.GET("/failure-handlers", cfg.FailureHandlerHandler.List)
		wf.GET("/failure-handlers/:handler_id", cfg.FailureHandlerHandler.Get)
		wf.PUT("/failure-handlers/:handler_id", cfg.FailureHandlerHandler.Update)
		wf.DELETE("/failure-handlers/:handler_id", cfg.FailureHandlerHandler.Delete)
	}

	return r
}
