package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

type CreateActionInput struct {
	TriggerType  types.TriggerType `json:"trigger_type"`
	ActionType   types.ActionType  `json:"action_type"`
	ActionConfig json.RawMessage   `json:"action_config"`
	JobIDs       []int64           `json:"job_ids,omitempty"`
	Persistent   bool              `json:"persistent"`
	IsRecovery   bool              `json:"is_recovery"`
}

type ActionService interface {
	Create(ctx context.Context, workflowID int64, input CreateActionInput) (*types.WorkflowAction, error)
	Get(ctx context.Context, workflowID, actionID int64) (*types.WorkflowAction, error)
	List(ctx context.Context, workflowID int64, page repos.Page) (*repos.Envelope, error)
	Delete(ctx context.Context, workflowID, actionID int64) error
	GetPending(ctx context.Context, workflowID int64, triggerTypes []types.TriggerType) ([]types.WorkflowAction, error)
	Claim(ctx context.Context, workflowID, actionID int64, computeNodeID *int64) (*types.WorkflowAction, error)

	// CheckAndTriggerActions runs inside the caller's transaction after any
	// state change that could fire actions.
	CheckAndTriggerActions(ctx context.Context, tx *gorm.DB, workflowID int64, trigger types.TriggerType, jobIDs []int64) error
	ResetForReinitialize(ctx context.Context, tx *gorm.DB, workflowID int64) error
}

type actionService struct {
	db      *gorm.DB
	actions repos.ActionRepo
	jobs    repos.JobRepo
	log     *logger.Logger
}

func NewActionService(db *gorm.DB, actions repos.ActionRepo, jobs repos.JobRepo, baseLog *logger.Logger) ActionService {
	return &actionService{db: db, actions: actions, jobs: jobs, log: baseLog.With("service", "ActionService")}
}

func (s *actionService) Create(ctx context.Context, workflowID int64, input CreateActionInput) (*types.WorkflowAction, error) {
	if !input.TriggerType.Valid() {
		return nil, apierr.Unprocessable("invalid trigger_type %q", input.TriggerType)
	}
	if !input.ActionType.Valid() {
		return nil, apierr.Unprocessable("invalid action_type %q", input.ActionType)
	}
	if err := validateActionConfig(input.ActionType, input.ActionConfig); err != nil {
		return nil, apierr.Unprocessable("invalid action_config: %v", err)
	}
	required := 1
	if input.TriggerType.JobScoped() && len(input.JobIDs) > 0 {
		required = len(input.JobIDs)
	}
	action := &types.WorkflowAction{
		WorkflowID:       workflowID,
		TriggerType:      input.TriggerType,
		ActionType:       input.ActionType,
		ActionConfig:     datatypes.JSON(input.ActionConfig),
		RequiredTriggers: required,
		Persistent:       input.Persistent,
		IsRecovery:       input.IsRecovery,
	}
	if len(input.JobIDs) > 0 {
		raw, err := json.Marshal(input.JobIDs)
		if err != nil {
			return nil, apierr.BadRequest("invalid job_ids: %v", err)
		}
		action.JobIDs = datatypes.JSON(raw)
	}
	if err := s.actions.Create(ctx, nil, action); err != nil {
		return nil, apierr.Database(err)
	}
	return action, nil
}

func validateActionConfig(actionType types.ActionType, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("action_config is required")
	}
	var config map[string]interface{}
	if err := json.Unmarshal(raw, &config); err != nil {
		return fmt.Errorf("not a JSON object: %w", err)
	}
	switch actionType {
	case types.ActionRunCommands:
		if len(config) != 1 {
			return fmt.Errorf("run_commands config must contain exactly the key %q", "commands")
		}
		rawCommands, ok := config["commands"]
		if !ok {
			return fmt.Errorf("run_commands config requires %q", "commands")
		}
		commands, ok := rawCommands.([]interface{})
		if !ok || len(commands) == 0 {
			return fmt.Errorf("commands must be a non-empty array of strings")
		}
		for _, c := range commands {
			if _, ok := c.(string); !ok {
				return fmt.Errorf("commands must be a non-empty array of strings")
			}
		}
	case types.ActionScheduleNodes:
		for key, val := range config {
			switch key {
			case "scheduler_id", "num_allocations", "max_parallel_jobs":
				f, ok := val.(float64)
				if !ok || f != float64(int64(f)) {
					return fmt.Errorf("%s must be an integer", key)
				}
			case "scheduler_type":
				if _, ok := val.(string); !ok {
					return fmt.Errorf("scheduler_type must be a string")
				}
			case "start_one_worker_per_node":
				if _, ok := val.(bool); !ok {
					return fmt.Errorf("start_one_worker_per_node must be a bool")
				}
			default:
				return fmt.Errorf("unknown key %q in schedule_nodes config", key)
			}
		}
	}
	return nil
}

func (s *actionService) Get(ctx context.Context, workflowID, actionID int64) (*types.WorkflowAction, error) {
	action, err := s.actions.GetByID(ctx, nil, actionID)
	if err != nil {
		return nil, apierr.Database(err)
	}
	if action == nil || action.WorkflowID != workflowID {
		return nil, apierr.NotFound("action %d not found in workflow %d", actionID, workflowID)
	}
	return action, nil
}

func (s *actionService) List(ctx context.Context, workflowID int64, page repos.Page) (*repos.Envelope, error) {
	env, err := s.actions.List(ctx, nil, workflowID, page)
	if err != nil {
		return nil, apierr.Database(err)
	}
	return env, nil
}

func (s *actionService) Delete(ctx context.Context, workflowID, actionID int64) error {
	if _, err := s.Get(ctx, workflowID, actionID); err != nil {
		return err
	}
	if err := s.actions.Delete(ctx, nil, actionID); err != nil {
		return apierr.Database(err)
	}
	return nil
}

func (s *actionService) GetPending(ctx context.Context, workflowID int64, triggerTypes []types.TriggerType) ([]types.WorkflowAction, error) {
	out, err := s.actions.ListPending(ctx, nil, workflowID, triggerTypes)
	if err != nil {
		return nil, apierr.Database(err)
	}
	return out, nil
}

// Claim latches a non-persistent action exactly once; a persistent action
// only has its executed-at refreshed so other workers can still claim it.
func (s *actionService) Claim(ctx context.Context, workflowID, actionID int64, computeNodeID *int64) (*types.WorkflowAction, error) {
	var claimed *types.WorkflowAction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		action, err := s.actions.GetByID(ctx, tx, actionID)
		if err != nil {
			return err
		}
		if action == nil || action.WorkflowID != workflowID {
			return apierr.NotFound("action %d not found in workflow %d", actionID, workflowID)
		}
		if action.Executed && !action.Persistent {
			return apierr.Conflict("action %d already executed", actionID)
		}
		if action.Persistent {
			if err := s.actions.TouchExecutedAt(ctx, tx, actionID, computeNodeID); err != nil {
				return err
			}
		} else {
			ok, err := s.actions.MarkExecutedIf(ctx, tx, actionID, computeNodeID)
			if err != nil {
				return err
			}
			if !ok {
				return apierr.Conflict("action %d already executed", actionID)
			}
		}
		claimed, err = s.actions.GetByID(ctx, tx, actionID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return claimed, nil
}

func actionJobIDs(action *types.WorkflowAction) []int64 {
	if len(action.JobIDs) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(action.JobIDs, &ids); err != nil {
		return nil
	}
	return ids
}

func (s *actionService) CheckAndTriggerActions(ctx context.Context, tx *gorm.DB, workflowID int64, trigger types.TriggerType, jobIDs []int64) error {
	actions, err := s.actions.ListByTrigger(ctx, tx, workflowID, trigger)
	if err != nil {
		return err
	}
	for i := range actions {
		action := &actions[i]
		if action.TriggerCount >= action.RequiredTriggers {
			continue
		}
		var count int
		switch {
		case !trigger.JobScoped():
			count = action.TriggerCount + 1
		case jobIDs != nil:
			count = action.TriggerCount + intersectionSize(jobIDs, actionJobIDs(action))
		default:
			satisfied, err := s.countJobsInSatisfiedState(ctx, tx, actionJobIDs(action), trigger)
			if err != nil {
				return err
			}
			count = satisfied
		}
		if count > action.RequiredTriggers {
			count = action.RequiredTriggers
		}
		if count == action.TriggerCount {
			continue
		}
		if err := s.actions.UpdateColumns(ctx, tx, action.ID, map[string]interface{}{"trigger_count": count}); err != nil {
			return err
		}
	}
	return nil
}

// intersectionSize counts how many of the changed jobs the action watches.
// An action with no job list watches every job.
func intersectionSize(changed, watched []int64) int {
	if len(watched) == 0 {
		if len(changed) > 0 {
			return 1
		}
		return 0
	}
	watchSet := make(map[int64]bool, len(watched))
	for _, id := range watched {
		watchSet[id] = true
	}
	n := 0
	for _, id := range changed {
		if watchSet[id] {
			n++
		}
	}
	return n
}

// countJobsInSatisfiedState counts watched jobs that already satisfy the
// trigger. For on_jobs_ready, jobs that have passed through Ready still
// count; reinitialize depends on that.
func (s *actionService) countJobsInSatisfiedState(ctx context.Context, tx *gorm.DB, jobIDs []int64, trigger types.TriggerType) (int, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	statuses, err := s.jobs.StatusesByID(ctx, tx, jobIDs)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range jobIDs {
		status, ok := statuses[id]
		if !ok {
			continue
		}
		switch trigger {
		case types.TriggerOnJobsReady:
			if status == types.JobReady || status.IsComplete() {
				n++
			}
		case types.TriggerOnJobsComplete:
			if status.IsComplete() {
				n++
			}
		}
	}
	return n, nil
}

// ResetForReinitialize deletes recovery actions and rewinds the rest:
// executed flags clear and trigger counts are recomputed from current job
// state for job-scoped triggers, zeroed for the others.
func (s *actionService) ResetForReinitialize(ctx context.Context, tx *gorm.DB, workflowID int64) error {
	if err := s.actions.DeleteRecovery(ctx, tx, workflowID); err != nil {
		return err
	}
	actions, err := s.actions.ListForWorkflow(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	for i := range actions {
		action := &actions[i]
		count := 0
		if action.TriggerType.JobScoped() {
			count, err = s.countJobsInSatisfiedState(ctx, tx, actionJobIDs(action), action.TriggerType)
			if err != nil {
				return err
			}
			if count > action.RequiredTriggers {
				count = action.RequiredTriggers
			}
		}
		updates := map[string]interface{}{
			"executed":      false,
			"executed_by":   nil,
			"trigger_count": count,
		}
		if err := s.actions.UpdateColumns(ctx, tx, action.ID, updates); err != nil {
			return err
		}
	}
	return nil
}
