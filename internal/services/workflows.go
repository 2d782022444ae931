package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

type CreateWorkflowInput struct {
	Name        string `json:"name"`
	User        string `json:"user"`
	Description string `json:"description,omitempty"`
}

type UpdateWorkflowInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsArchived  *bool   `json:"is_archived,omitempty"`
}

type WorkflowService interface {
	Create(ctx context.Context, input CreateWorkflowInput) (*types.Workflow, error)
	Get(ctx context.Context, id int64) (*types.Workflow, error)
	List(ctx context.Context, filter repos.WorkflowFilter, page repos.Page) (*repos.Envelope, error)
	Update(ctx context.Context, id int64, input UpdateWorkflowInput) (*types.Workflow, error)
	Delete(ctx context.Context, id int64) error

	StatusSummary(ctx context.Context, id int64) (*types.WorkflowStatusSummary, error)
	IsComplete(ctx context.Context, id int64) (bool, error)
	Start(ctx context.Context, id int64) error
	Reinitialize(ctx context.Context, id int64, clearEphemeralUserData bool) (*InitializeJobsResult, error)

	// CheckAccess applies the grant model: the owner always passes, other
	// users pass when the workflow has no groups or they belong to one.
	CheckAccess(ctx context.Context, user string, workflowID int64) error
}

type workflowService struct {
	db            *gorm.DB
	workflows     repos.WorkflowRepo
	jobs          repos.JobRepo
	events        repos.EventRepo
	access        repos.AccessRepo
	actions       ActionService
	graph         GraphService
	enforceAccess bool
	log           *logger.Logger
}

func NewWorkflowService(db *gorm.DB, workflows repos.WorkflowRepo, jobs repos.JobRepo, events repos.EventRepo, access repos.AccessRepo, actions ActionService, graph GraphService, enforceAccess bool, baseLog *logger.Logger) WorkflowService {
	return &workflowService{
		db:            db,
		workflows:     workflows,
		jobs:          jobs,
		events:        events,
		access:        access,
		actions:       actions,
		graph:         graph,
		enforceAccess: enforceAccess,
		log:           baseLog.With("service", "WorkflowService"),
	}
}

func (s *workflowService) Create(ctx context.Context, input CreateWorkflowInput) (*types.Workflow, error) {
	if input.Name == "" {
		return nil, apierr.Unprocessable("workflow name is required")
	}
	if input.User == "" {
		return nil, apierr.Unprocessable("workflow user is required")
	}
	wf := &types.Workflow{
		Name:        input.Name,
		User:        input.User,
		Description: input.Description,
		Status:      "uninitialized",
	}
	if err := s.workflows.Create(ctx, nil, wf); err != nil {
		return nil, apierr.Database(err)
	}
	return wf, nil
}

func (s *workflowService) Get(ctx context.Context, id int64) (*types.Workflow, error) {
	wf, err := s.workflows.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Database(err)
	}
	if wf == nil {
		return nil, apierr.NotFound("workflow %d not found", id)
	}
	return wf, nil
}

func (s *workflowService) List(ctx context.Context, filter repos.WorkflowFilter, page repos.Page) (*repos.Envelope, error) {
	env, err := s.workflows.List(ctx, nil, filter, page)
	if err != nil {
		return nil, apierr.Database(err)
	}
	return env, nil
}

func (s *workflowService) Update(ctx context.Context, id int64, input UpdateWorkflowInput) (*types.Workflow, error) {
	var updated *types.Workflow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		wf, err := s.workflows.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if wf == nil {
			return apierr.NotFound("workflow %d not found", id)
		}
		if input.Name != nil {
			wf.Name = *input.Name
		}
		if input.Description != nil {
			wf.Description = *input.Description
		}
		if input.IsArchived != nil {
			wf.IsArchived = *input.IsArchived
		}
		if err := s.workflows.Update(ctx, tx, wf); err != nil {
			return err
		}
		updated = wf
		return nil
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return updated, nil
}

// Delete removes the workflow and everything hanging off it in one
// transaction; the repo handles the cascade ordering.
func (s *workflowService) Delete(ctx context.Context, id int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		wf, err := s.workflows.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if wf == nil {
			return apierr.NotFound("workflow %d not found", id)
		}
		return s.workflows.Delete(ctx, tx, id)
	})
	return wrapDB(err)
}

func (s *workflowService) StatusSummary(ctx context.Context, id int64) (*types.WorkflowStatusSummary, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	counts, err := s.workflows.JobStatusCounts(ctx, nil, id)
	if err != nil {
		return nil, apierr.Database(err)
	}
	summary := &types.WorkflowStatusSummary{
		WorkflowID: id,
		JobCounts:  map[string]int64{},
		IsComplete: true,
	}
	for status, n := range counts {
		summary.JobCounts[status.String()] = n
		summary.TotalJobs += n
		if !status.IsTerminal() {
			summary.IsComplete = false
		}
		if status == types.JobFailed || status == types.JobTerminated {
			summary.HasFailures = true
		}
	}
	if summary.TotalJobs == 0 {
		summary.IsComplete = false
	}
	return summary, nil
}

func (s *workflowService) IsComplete(ctx context.Context, id int64) (bool, error) {
	summary, err := s.StatusSummary(ctx, id)
	if err != nil {
		return false, err
	}
	return summary.IsComplete, nil
}

// Start fires the workflow-start trigger and stamps the workflow running.
func (s *workflowService) Start(ctx context.Context, id int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		wf, err := s.workflows.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if wf == nil {
			return apierr.NotFound("workflow %d not found", id)
		}
		if err := s.actions.CheckAndTriggerActions(ctx, tx, id, types.TriggerOnWorkflowStart, nil); err != nil {
			return err
		}
		if err := s.workflows.UpdateStatus(ctx, tx, id, "running"); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, &types.Event{
			WorkflowID: id,
			Data:       eventPayload("workflow", "start", nil),
		})
	})
	return wrapDB(err)
}

// Reinitialize rewinds the action engine and re-derives job readiness, the
// restart entry point after a crash or an edited workflow.
func (s *workflowService) Reinitialize(ctx context.Context, id int64, clearEphemeralUserData bool) (*InitializeJobsResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.actions.ResetForReinitialize(ctx, tx, id)
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return s.graph.InitializeJobs(ctx, id, false, clearEphemeralUserData)
}

func (s *workflowService) CheckAccess(ctx context.Context, user string, workflowID int64) error {
	if !s.enforceAccess {
		return nil
	}
	wf, err := s.workflows.GetByID(ctx, nil, workflowID)
	if err != nil {
		return apierr.Database(err)
	}
	if wf == nil {
		return apierr.NotFound("workflow %d not found", workflowID)
	}
	if wf.User == user {
		return nil
	}
	allowed, err := s.access.UserHasAccess(ctx, nil, user, workflowID)
	if err != nil {
		return apierr.Database(err)
	}
	if !allowed {
		return apierr.Forbidden("user %s has no access to workflow %d", user, workflowID)
	}
	return nil
}

// ComputeNodeService tracks worker processes and fires the worker lifecycle
// triggers as they come and go.
type ComputeNodeService interface {
	Register(ctx context.Context, workflowID int64, node *types.ComputeNode) (*types.ComputeNode, error)
	Get(ctx context.Context, workflowID, nodeID int64) (*types.ComputeNode, error)
	List(ctx context.Context, workflowID int64, activeOnly bool, page repos.Page) (*repos.Envelope, error)
	Deactivate(ctx context.Context, workflowID, nodeID int64) (*types.ComputeNode, error)
}

type computeNodeService struct {
	db      *gorm.DB
	nodes   repos.ComputeNodeRepo
	events  repos.EventRepo
	actions ActionService
	log     *logger.Logger
}

func NewComputeNodeService(db *gorm.DB, nodes repos.ComputeNodeRepo, events repos.EventRepo, actions ActionService, baseLog *logger.Logger) ComputeNodeService {
	return &computeNodeService{db: db, nodes: nodes, events: events, actions: actions, log: baseLog.With("service", "ComputeNodeService")}
}

func (s *computeNodeService) Register(ctx context.Context, workflowID int64, node *types.ComputeNode) (*types.ComputeNode, error) {
	if node.Hostname == "" {
		return nil, apierr.Unprocessable("compute node hostname is required")
	}
	node.WorkflowID = workflowID
	node.IsActive = true
	if node.StartTime.IsZero() {
		node.StartTime = types.Now()
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.nodes.Create(ctx, tx, node); err != nil {
			return err
		}
		if err := s.actions.CheckAndTriggerActions(ctx, tx, workflowID, types.TriggerOnWorkerStart, nil); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, &types.Event{
			WorkflowID: workflowID,
			Data: eventPayload("compute_node", "register", map[string]interface{}{
				"compute_node_id": node.ID,
				"hostname":        node.Hostname,
			}),
		})
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return node, nil
}

func (s *computeNodeService) Get(ctx context.Context, workflowID, nodeID int64) (*types.ComputeNode, error) {
	node, err := s.nodes.GetByID(ctx, nil, nodeID)
	if err != nil {
		return nil, apierr.Database(err)
	}
	if node == nil || node.WorkflowID != workflowID {
		return nil, apierr.NotFound("compute node %d not found in workflow %d", nodeID, workflowID)
	}
	return node, nil
}

func (s *computeNodeService) List(ctx context.Context, workflowID int64, activeOnly bool, page repos.Page) (*repos.Envelope, error) {
	env, err := s.nodes.List(ctx, nil, workflowID, activeOnly, page)
	if err != nil {
		return nil, apierr.Database(err)
	}
	return env, nil
}

// Deactivate marks the node done and fires the worker-complete trigger.
// Deactivating twice is a conflict.
func (s *computeNodeService) Deactivate(ctx context.Context, workflowID, nodeID int64) (*types.ComputeNode, error) {
	var node *types.ComputeNode
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		node, err = s.nodes.GetByID(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if node == nil || node.WorkflowID != workflowID {
			return apierr.NotFound("compute node %d not found in workflow %d", nodeID, workflowID)
		}
		duration := formatUptime(time.Since(node.StartTime.Time))
		ok, err := s.nodes.Deactivate(ctx, tx, nodeID, duration)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("compute node %d is already inactive", nodeID)
		}
		if err := s.actions.CheckAndTriggerActions(ctx, tx, workflowID, types.TriggerOnWorkerComplete, nil); err != nil {
			return err
		}
		if err := s.events.Append(ctx, tx, &types.Event{
			WorkflowID: workflowID,
			Data: eventPayload("compute_node", "deactivate", map[string]interface{}{
				"compute_node_id": nodeID,
			}),
		}); err != nil {
			return err
		}
		node, err = s.nodes.GetByID(ctx, tx, nodeID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return node, nil
}

// formatUptime renders node uptime as an ISO 8601 duration.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d.Seconds())
	return fmt.Sprintf("PT%dS", seconds)
}
