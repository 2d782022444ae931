package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

// reversalDepthCap bounds the downstream walk; cycles are not forbidden at
// the schema level, so the cap is the safety net.
const reversalDepthCap = 100

type InitializeJobsResult struct {
	ReadyJobIDs   []int64 `json:"ready_job_ids"`
	BlockedJobIDs []int64 `json:"blocked_job_ids"`
}

type GraphService interface {
	InitializeJobs(ctx context.Context, workflowID int64, onlyUninitialized, clearEphemeralUserData bool) (*InitializeJobsResult, error)
	ProcessChangedJobInputs(ctx context.Context, workflowID int64, dryRun bool) ([]string, error)
	ResetJobStatus(ctx context.Context, workflowID int64, failedOnly bool) error
}

type graphService struct {
	db       *gorm.DB
	jobs     repos.JobRepo
	userData repos.UserDataRepo
	events   repos.EventRepo
	actions  ActionService
	log      *logger.Logger
}

func NewGraphService(db *gorm.DB, jobs repos.JobRepo, userData repos.UserDataRepo, events repos.EventRepo, actions ActionService, baseLog *logger.Logger) GraphService {
	return &graphService{
		db:       db,
		jobs:     jobs,
		userData: userData,
		events:   events,
		actions:  actions,
		log:      baseLog.With("service", "GraphService"),
	}
}

// InitializeJobs derives every eligible job's readiness from its upstream
// set: Ready when all upstream jobs are complete, Blocked otherwise. Jobs
// already in flight or finished are left alone. The stored input hash is
// recomputed for every evaluated job.
func (s *graphService) InitializeJobs(ctx context.Context, workflowID int64, onlyUninitialized, clearEphemeralUserData bool) (*InitializeJobsResult, error) {
	result := &InitializeJobsResult{ReadyJobIDs: []int64{}, BlockedJobIDs: []int64{}}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		all, err := s.jobs.ListByWorkflow(ctx, tx, workflowID)
		if err != nil {
			return err
		}
		statusByID := make(map[int64]types.JobStatus, len(all))
		for _, job := range all {
			statusByID[job.ID] = job.Status
		}
		deps, err := s.jobs.DependenciesForWorkflow(ctx, tx, workflowID)
		if err != nil {
			return err
		}
		for i := range all {
			job := &all[i]
			if onlyUninitialized {
				if job.Status != types.JobUninitialized {
					continue
				}
			} else if !initializable(job.Status) {
				continue
			}
			allComplete := true
			for _, upstream := range deps[job.ID] {
				if !statusByID[upstream].IsComplete() {
					allComplete = false
					break
				}
			}
			if allComplete {
				result.ReadyJobIDs = append(result.ReadyJobIDs, job.ID)
			} else {
				result.BlockedJobIDs = append(result.BlockedJobIDs, job.ID)
			}
			hash, err := computeJobInputHash(ctx, tx, s.jobs, s.userData, job)
			if err != nil {
				return err
			}
			if err := s.jobs.UpdateInternalColumns(ctx, tx, job.ID, map[string]interface{}{"input_hash": hash}); err != nil {
				return err
			}
		}
		if err := s.jobs.SetStatus(ctx, tx, result.ReadyJobIDs, types.JobReady); err != nil {
			return err
		}
		if err := s.jobs.SetStatus(ctx, tx, result.BlockedJobIDs, types.JobBlocked); err != nil {
			return err
		}
		if clearEphemeralUserData {
			if err := s.userData.ClearEphemeralData(ctx, tx, workflowID); err != nil {
				return err
			}
		}
		if len(result.ReadyJobIDs) > 0 {
			if err := s.actions.CheckAndTriggerActions(ctx, tx, workflowID, types.TriggerOnJobsReady, result.ReadyJobIDs); err != nil {
				return err
			}
		}
		return s.events.Append(ctx, tx, &types.Event{
			WorkflowID: workflowID,
			Data: eventPayload("jobs", "initialize", map[string]interface{}{
				"ready":   len(result.ReadyJobIDs),
				"blocked": len(result.BlockedJobIDs),
			}),
		})
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return result, nil
}

// initializable reports whether InitializeJobs may (re)derive this job's
// readiness. In-flight and finished jobs keep their status.
func initializable(status types.JobStatus) bool {
	switch status {
	case types.JobUninitialized, types.JobBlocked, types.JobReady:
		return true
	}
	return false
}

// ProcessChangedJobInputs recomputes every job's input hash and resets jobs
// whose hash no longer matches the stored one.
func (s *graphService) ProcessChangedJobInputs(ctx context.Context, workflowID int64, dryRun bool) ([]string, error) {
	resetNames := []string{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		all, err := s.jobs.ListByWorkflow(ctx, tx, workflowID)
		if err != nil {
			return err
		}
		var resetIDs []int64
		for i := range all {
			job := &all[i]
			internal, err := s.jobs.GetInternal(ctx, tx, job.ID)
			if err != nil {
				return err
			}
			if internal == nil || internal.InputHash == nil {
				continue
			}
			hash, err := computeJobInputHash(ctx, tx, s.jobs, s.userData, job)
			if err != nil {
				return err
			}
			if hash != *internal.InputHash {
				resetIDs = append(resetIDs, job.ID)
				resetNames = append(resetNames, job.Name)
			}
		}
		if dryRun || len(resetIDs) == 0 {
			return nil
		}
		if err := s.jobs.SetStatus(ctx, tx, resetIDs, types.JobUninitialized); err != nil {
			return err
		}
		return s.jobs.ClearActiveComputeNodes(ctx, tx, workflowID, resetIDs)
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return resetNames, nil
}

// ResetJobStatus returns jobs to Uninitialized. With failedOnly, only jobs
// in a failed-family state are reset, and any that had completed a run
// trigger the downstream completion reversal in the same transaction.
func (s *graphService) ResetJobStatus(ctx context.Context, workflowID int64, failedOnly bool) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if !failedOnly {
			all, err := s.jobs.ListByWorkflow(ctx, tx, workflowID)
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(all))
			for _, job := range all {
				ids = append(ids, job.ID)
			}
			if err := s.jobs.SetStatus(ctx, tx, ids, types.JobUninitialized); err != nil {
				return err
			}
			if err := s.jobs.ClearActiveComputeNodes(ctx, tx, workflowID, nil); err != nil {
				return err
			}
			return s.events.Append(ctx, tx, &types.Event{
				WorkflowID: workflowID,
				Data: eventPayload("jobs", "reset", map[string]interface{}{
					"failed_only": false,
					"count":       len(ids),
				}),
			})
		}
		failed, err := s.jobs.ListByWorkflow(ctx, tx, workflowID,
			types.JobFailed, types.JobCanceled, types.JobTerminated)
		if err != nil {
			return err
		}
		for _, job := range failed {
			if err := s.jobs.SetStatus(ctx, tx, []int64{job.ID}, types.JobUninitialized); err != nil {
				return err
			}
			if err := s.jobs.ClearActiveComputeNodes(ctx, tx, workflowID, []int64{job.ID}); err != nil {
				return err
			}
			if job.Status.IsComplete() {
				if err := s.completionReversal(ctx, tx, job.ID); err != nil {
					return err
				}
			}
		}
		return s.events.Append(ctx, tx, &types.Event{
			WorkflowID: workflowID,
			Data: eventPayload("jobs", "reset", map[string]interface{}{
				"failed_only": true,
				"count":       len(failed),
			}),
		})
	})
	if err != nil {
		return wrapDB(err)
	}
	return nil
}

// completionReversal walks the transitive downstream of jobID (breadth
// first, bounded) and returns every reached job to Uninitialized with its
// active-node pointer cleared.
func (s *graphService) completionReversal(ctx context.Context, tx *gorm.DB, jobID int64) error {
	visited := map[int64]bool{jobID: true}
	frontier := []int64{jobID}
	var reached []int64
	for depth := 0; depth < reversalDepthCap && len(frontier) > 0; depth++ {
		dependents, err := s.jobs.DependentsOf(ctx, tx, frontier)
		if err != nil {
			return err
		}
		var next []int64
		for _, downstreams := range dependents {
			for _, id := range downstreams {
				if visited[id] {
					continue
				}
				visited[id] = true
				next = append(next, id)
				reached = append(reached, id)
			}
		}
		frontier = next
	}
	if len(reached) == 0 {
		return nil
	}
	if err := s.jobs.SetStatus(ctx, tx, reached, types.JobUninitialized); err != nil {
		return err
	}
	return s.jobs.ClearActiveComputeNodes(ctx, tx, 0, reached)
}
