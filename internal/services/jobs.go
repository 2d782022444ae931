package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

// legalTransitions is the explicit status-change table for user-driven
// changes. Terminal statuses only go back through Uninitialized.
var legalTransitions = map[types.JobStatus][]types.JobStatus{
	types.JobUninitialized:    {types.JobBlocked, types.JobReady, types.JobDisabled},
	types.JobBlocked:          {types.JobReady, types.JobCanceled, types.JobUninitialized, types.JobDisabled},
	types.JobReady:            {types.JobPending, types.JobCanceled, types.JobDisabled},
	types.JobPending:          {types.JobSubmitted, types.JobSubmittedPending, types.JobRunning, types.JobCanceled},
	types.JobSubmittedPending: {types.JobSubmitted, types.JobRunning, types.JobCanceled},
	types.JobSubmitted:        {types.JobRunning, types.JobCanceled},
	types.JobRunning:          {types.JobCompleted, types.JobFailed, types.JobCanceled, types.JobTerminated},
	types.JobCompleted:        {types.JobUninitialized},
	types.JobFailed:           {types.JobUninitialized},
	types.JobCanceled:         {types.JobUninitialized},
	types.JobTerminated:       {types.JobUninitialized},
	types.JobDisabled:         {types.JobUninitialized},
}

func transitionAllowed(from, to types.JobStatus) bool {
	for _, legal := range legalTransitions[from] {
		if legal == to {
			return true
		}
	}
	return false
}

type CreateJobInput struct {
	Name                       string  `json:"name"`
	Command                    string  `json:"command"`
	InvocationScript           *string `json:"invocation_script,omitempty"`
	ResourceRequirementsID     *int64  `json:"resource_requirements_id,omitempty"`
	SchedulerID                *int64  `json:"scheduler_id,omitempty"`
	CancelOnBlockingJobFailure bool    `json:"cancel_on_blocking_job_failure"`
	SupportsTermination        bool    `json:"supports_termination"`
	DependsOn                  []int64 `json:"depends_on,omitempty"`
	InputFileIDs               []int64 `json:"input_file_ids,omitempty"`
	OutputFileIDs              []int64 `json:"output_file_ids,omitempty"`
	InputUserDataIDs           []int64 `json:"input_user_data_ids,omitempty"`
	OutputUserDataIDs          []int64 `json:"output_user_data_ids,omitempty"`
}

type UpdateJobInput struct {
	Name                       *string          `json:"name,omitempty"`
	Command                    *string          `json:"command,omitempty"`
	InvocationScript           *string          `json:"invocation_script,omitempty"`
	ResourceRequirementsID     *int64           `json:"resource_requirements_id,omitempty"`
	SchedulerID                *int64           `json:"scheduler_id,omitempty"`
	CancelOnBlockingJobFailure *bool            `json:"cancel_on_blocking_job_failure,omitempty"`
	SupportsTermination        *bool            `json:"supports_termination,omitempty"`
	DependsOn                  []int64          `json:"depends_on,omitempty"`
	Status                     *types.JobStatus `json:"status,omitempty"`
}

type CompleteJobInput struct {
	Status          types.JobStatus `json:"status"`
	ReturnCode      int             `json:"return_code"`
	ExecTimeMinutes float64         `json:"exec_time_minutes"`
	CompletionTime  *types.Timestamp `json:"completion_time,omitempty"`
	PeakMemoryBytes int64           `json:"peak_memory_bytes"`
	AvgMemoryBytes  int64           `json:"avg_memory_bytes"`
	PeakCPUPercent  float64         `json:"peak_cpu_percent"`
	AvgCPUPercent   float64         `json:"avg_cpu_percent"`
}

type JobService interface {
	CreateJobs(ctx context.Context, workflowID int64, inputs []CreateJobInput) ([]types.Job, error)
	Get(ctx context.Context, workflowID, jobID int64, includeRelationships bool) (*types.Job, error)
	List(ctx context.Context, filter repos.JobFilter, page repos.Page) (*repos.Envelope, error)
	Update(ctx context.Context, workflowID, jobID int64, input UpdateJobInput) (*types.Job, error)
	Delete(ctx context.Context, workflowID, jobID int64) error

	Start(ctx context.Context, workflowID, jobID, computeNodeID int64) (*types.Job, error)
	Complete(ctx context.Context, workflowID, jobID int64, input CompleteJobInput) (*types.Job, error)
	Retry(ctx context.Context, workflowID, jobID int64, maxRetries *int) (*types.Job, error)
	ManageStatusChange(ctx context.Context, workflowID, jobID int64, to types.JobStatus) (*types.Job, error)
}

type jobService struct {
	db         *gorm.DB
	jobs       repos.JobRepo
	workflows  repos.WorkflowRepo
	results    repos.ResultRepo
	events     repos.EventRepo
	actions    ActionService
	maxRetries int
	log        *logger.Logger
}

func NewJobService(db *gorm.DB, jobs repos.JobRepo, workflows repos.WorkflowRepo, results repos.ResultRepo, events repos.EventRepo, actions ActionService, maxRetries int, baseLog *logger.Logger) JobService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &jobService{
		db:         db,
		jobs:       jobs,
		workflows:  workflows,
		results:    results,
		events:     events,
		actions:    actions,
		maxRetries: maxRetries,
		log:        baseLog.With("service", "JobService"),
	}
}

func (s *jobService) CreateJobs(ctx context.Context, workflowID int64, inputs []CreateJobInput) ([]types.Job, error) {
	if len(inputs) == 0 {
		return []types.Job{}, nil
	}
	if len(inputs) > repos.MaxRecordTransferCount {
		return nil, apierr.BadRequest("cannot create more than %d jobs per request", repos.MaxRecordTransferCount)
	}
	var created []types.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		wf, err := s.workflows.GetByID(ctx, tx, workflowID)
		if err != nil {
			return err
		}
		if wf == nil {
			return apierr.NotFound("workflow %d not found", workflowID)
		}
		jobs := make([]*types.Job, 0, len(inputs))
		for i := range inputs {
			in := &inputs[i]
			if in.Name == "" || in.Command == "" {
				return apierr.Unprocessable("job name and command are required")
			}
			jobs = append(jobs, &types.Job{
				WorkflowID:                 workflowID,
				Name:                       in.Name,
				Command:                    in.Command,
				InvocationScript:           in.InvocationScript,
				ResourceRequirementsID:     in.ResourceRequirementsID,
				SchedulerID:                in.SchedulerID,
				CancelOnBlockingJobFailure: in.CancelOnBlockingJobFailure,
				SupportsTermination:        in.SupportsTermination,
				Status:                     types.JobUninitialized,
				DependsOn:                  in.DependsOn,
				InputFileIDs:               in.InputFileIDs,
				OutputFileIDs:              in.OutputFileIDs,
				InputUserDataIDs:           in.InputUserDataIDs,
				OutputUserDataIDs:          in.OutputUserDataIDs,
			})
		}
		if err := validateDependencyRefs(ctx, tx, s.jobs, workflowID, jobs); err != nil {
			return err
		}
		if err := s.jobs.CreateBatch(ctx, tx, jobs); err != nil {
			return err
		}
		created = make([]types.Job, len(jobs))
		for i, job := range jobs {
			created[i] = *job
		}
		return nil
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return created, nil
}

// validateDependencyRefs checks that every depends_on target either exists
// in the workflow already or is part of the same create batch.
func validateDependencyRefs(ctx context.Context, tx *gorm.DB, jobRepo repos.JobRepo, workflowID int64, batch []*types.Job) error {
	var refs []int64
	seen := map[int64]bool{}
	for _, job := range batch {
		for _, dep := range job.DependsOn {
			if !seen[dep] {
				seen[dep] = true
				refs = append(refs, dep)
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}
	existing, err := jobRepo.GetByIDs(ctx, tx, refs)
	if err != nil {
		return err
	}
	known := map[int64]bool{}
	for _, job := range existing {
		if job.WorkflowID == workflowID {
			known[job.ID] = true
		}
	}
	for _, ref := range refs {
		if !known[ref] {
			return apierr.Unprocessable("depends_on references unknown job %d", ref)
		}
	}
	return nil
}

func (s *jobService) Get(ctx context.Context, workflowID, jobID int64, includeRelationships bool) (*types.Job, error) {
	job, err := s.getInWorkflow(ctx, nil, workflowID, jobID)
	if err != nil {
		return nil, wrapDB(err)
	}
	if includeRelationships {
		if err := s.jobs.LoadRelationships(ctx, nil, job); err != nil {
			return nil, apierr.Database(err)
		}
	}
	return job, nil
}

func (s *jobService) getInWorkflow(ctx context.Context, tx *gorm.DB, workflowID, jobID int64) (*types.Job, error) {
	job, err := s.jobs.GetByID(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.WorkflowID != workflowID {
		return nil, apierr.NotFound("job %d not found in workflow %d", jobID, workflowID)
	}
	return job, nil
}

func (s *jobService) List(ctx context.Context, filter repos.JobFilter, page repos.Page) (*repos.Envelope, error) {
	env, err := s.jobs.List(ctx, nil, filter, page)
	if err != nil {
		return nil, apierr.Database(err)
	}
	return env, nil
}

// Update applies field updates under the mutability rules: scheduler and
// resource-requirement references may change at any time, everything else
// only while the job is Uninitialized. The status field accepts exactly one
// value, Disabled; all other transitions go through ManageStatusChange.
func (s *jobService) Update(ctx context.Context, workflowID, jobID int64, input UpdateJobInput) (*types.Job, error) {
	var updated *types.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.getInWorkflow(ctx, tx, workflowID, jobID)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if input.SchedulerID != nil {
			updates["scheduler_id"] = *input.SchedulerID
		}
		if input.ResourceRequirementsID != nil {
			updates["resource_requirements_id"] = *input.ResourceRequirementsID
		}
		restricted := input.Name != nil || input.Command != nil || input.InvocationScript != nil ||
			input.CancelOnBlockingJobFailure != nil || input.SupportsTermination != nil ||
			input.DependsOn != nil
		if restricted && job.Status != types.JobUninitialized {
			return apierr.Unprocessable("job %d is %s; only scheduler and resource requirement references may change", jobID, job.Status)
		}
		if input.Name != nil {
			updates["name"] = *input.Name
		}
		if input.Command != nil {
			updates["command"] = *input.Command
		}
		if input.InvocationScript != nil {
			updates["invocation_script"] = *input.InvocationScript
		}
		if input.CancelOnBlockingJobFailure != nil {
			updates["cancel_on_blocking_job_failure"] = *input.CancelOnBlockingJobFailure
		}
		if input.SupportsTermination != nil {
			updates["supports_termination"] = *input.SupportsTermination
		}
		if len(updates) > 0 {
			if err := s.jobs.UpdateColumns(ctx, tx, jobID, updates); err != nil {
				return err
			}
		}
		if input.DependsOn != nil {
			if err := s.jobs.ReplaceDependencies(ctx, tx, jobID, input.DependsOn); err != nil {
				return err
			}
		}
		if input.Status != nil {
			if *input.Status != types.JobDisabled {
				return apierr.Unprocessable("job update may only set status to %s", types.JobDisabled)
			}
			if !transitionAllowed(job.Status, types.JobDisabled) {
				return apierr.Unprocessable("illegal status change %s -> %s for job %d", job.Status, types.JobDisabled, jobID)
			}
			ok, err := s.jobs.UpdateStatusIf(ctx, tx, jobID, job.Status, types.JobDisabled)
			if err != nil {
				return err
			}
			if !ok {
				return apierr.Conflict("job %d status changed concurrently", jobID)
			}
		}
		updated, err = s.jobs.GetByID(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return updated, nil
}

func (s *jobService) Delete(ctx context.Context, workflowID, jobID int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.getInWorkflow(ctx, tx, workflowID, jobID); err != nil {
			return err
		}
		return s.jobs.Delete(ctx, tx, jobID)
	})
	return wrapDB(err)
}

// Start moves a claimed job into Running, records which node is executing
// it, and issues a fresh run id.
func (s *jobService) Start(ctx context.Context, workflowID, jobID, computeNodeID int64) (*types.Job, error) {
	var started *types.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.getInWorkflow(ctx, tx, workflowID, jobID)
		if err != nil {
			return err
		}
		moved := false
		for _, from := range []types.JobStatus{types.JobPending, types.JobSubmittedPending, types.JobSubmitted} {
			ok, err := s.jobs.UpdateStatusIf(ctx, tx, jobID, from, types.JobRunning)
			if err != nil {
				return err
			}
			if ok {
				moved = true
				break
			}
		}
		if !moved {
			return apierr.Conflict("job %d is %s, not startable", jobID, job.Status)
		}
		internal, err := s.jobs.GetInternal(ctx, tx, jobID)
		if err != nil {
			return err
		}
		runID := int64(1)
		if internal != nil {
			runID = internal.RunID + 1
		}
		if err := s.jobs.UpdateInternalColumns(ctx, tx, jobID, map[string]interface{}{
			"active_compute_node_id": computeNodeID,
			"run_id":                 runID,
		}); err != nil {
			return err
		}
		started, err = s.jobs.GetByID(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return started, nil
}

// Complete records the run result and moves the job out of Running. A
// failed outcome cancels downstream jobs that opted in with
// cancel_on_blocking_job_failure, transitively. Blocked dependents whose
// upstream set is now fully complete move to Ready in the same transaction.
// Completion also advances job- and workflow-scoped action triggers.
func (s *jobService) Complete(ctx context.Context, workflowID, jobID int64, input CompleteJobInput) (*types.Job, error) {
	if !input.Status.IsComplete() {
		return nil, apierr.Unprocessable("completion status must be one of completed, failed, canceled, terminated; got %s", input.Status)
	}
	var completed *types.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.getInWorkflow(ctx, tx, workflowID, jobID); err != nil {
			return err
		}
		ok, err := s.jobs.UpdateStatusIf(ctx, tx, jobID, types.JobRunning, input.Status)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("job %d is not running", jobID)
		}
		internal, err := s.jobs.GetInternal(ctx, tx, jobID)
		if err != nil {
			return err
		}
		result := &types.Result{
			JobID:           jobID,
			WorkflowID:      workflowID,
			ReturnCode:      input.ReturnCode,
			ExecTimeMinutes: input.ExecTimeMinutes,
			Status:          input.Status,
			PeakMemoryBytes: input.PeakMemoryBytes,
			AvgMemoryBytes:  input.AvgMemoryBytes,
			PeakCPUPercent:  input.PeakCPUPercent,
			AvgCPUPercent:   input.AvgCPUPercent,
		}
		if internal != nil {
			result.RunID = internal.RunID
			if internal.ActiveComputeNodeID != nil {
				result.ComputeNodeID = *internal.ActiveComputeNodeID
			}
		}
		if input.CompletionTime != nil {
			result.CompletionTime = *input.CompletionTime
		} else {
			result.CompletionTime = types.NewTimestamp(time.Now())
		}
		if err := s.results.Insert(ctx, tx, result); err != nil {
			return err
		}
		if err := s.jobs.UpdateInternalColumns(ctx, tx, jobID, map[string]interface{}{
			"active_compute_node_id": nil,
		}); err != nil {
			return err
		}
		completedIDs := []int64{jobID}
		if input.Status == types.JobFailed {
			canceled, err := s.cancelDownstream(ctx, tx, jobID)
			if err != nil {
				return err
			}
			completedIDs = append(completedIDs, canceled...)
		}
		if err := s.actions.CheckAndTriggerActions(ctx, tx, workflowID, types.TriggerOnJobsComplete, completedIDs); err != nil {
			return err
		}
		if err := s.promoteReadyDependents(ctx, tx, workflowID, jobID); err != nil {
			return err
		}
		done, err := s.workflowDone(ctx, tx, workflowID)
		if err != nil {
			return err
		}
		if done {
			if err := s.actions.CheckAndTriggerActions(ctx, tx, workflowID, types.TriggerOnWorkflowComplete, nil); err != nil {
				return err
			}
			if err := s.workflows.UpdateStatus(ctx, tx, workflowID, "complete"); err != nil {
				return err
			}
		}
		if err := s.events.Append(ctx, tx, &types.Event{
			WorkflowID: workflowID,
			Data: eventPayload("job", "complete", map[string]interface{}{
				"job_id":      jobID,
				"status":      input.Status.String(),
				"return_code": input.ReturnCode,
			}),
		}); err != nil {
			return err
		}
		completed, err = s.jobs.GetByID(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return completed, nil
}

// promoteReadyDependents re-derives readiness of the direct dependents of a
// just-finished job: a Blocked dependent whose upstream set is now fully
// complete moves to Ready, and the jobs-ready trigger fires for the batch.
func (s *jobService) promoteReadyDependents(ctx context.Context, tx *gorm.DB, workflowID, jobID int64) error {
	dependents, err := s.jobs.DependentsOf(ctx, tx, []int64{jobID})
	if err != nil {
		return err
	}
	candidates := dependents[jobID]
	if len(candidates) == 0 {
		return nil
	}
	jobs, err := s.jobs.GetByIDs(ctx, tx, candidates)
	if err != nil {
		return err
	}
	deps, err := s.jobs.DependenciesForWorkflow(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	var upstream []int64
	for _, job := range jobs {
		if job.Status == types.JobBlocked {
			upstream = append(upstream, deps[job.ID]...)
		}
	}
	if len(upstream) == 0 {
		return nil
	}
	statuses, err := s.jobs.StatusesByID(ctx, tx, upstream)
	if err != nil {
		return err
	}
	var ready []int64
	for _, job := range jobs {
		if job.Status != types.JobBlocked {
			continue
		}
		allComplete := true
		for _, up := range deps[job.ID] {
			if !statuses[up].IsComplete() {
				allComplete = false
				break
			}
		}
		if allComplete {
			ready = append(ready, job.ID)
		}
	}
	if len(ready) == 0 {
		return nil
	}
	if err := s.jobs.SetStatus(ctx, tx, ready, types.JobReady); err != nil {
		return err
	}
	return s.actions.CheckAndTriggerActions(ctx, tx, workflowID, types.TriggerOnJobsReady, ready)
}

// cancelDownstream walks dependents of a failed job and cancels every
// not-yet-finished one that set cancel_on_blocking_job_failure. The walk
// continues through canceled jobs so the whole doomed subtree settles in
// one pass. Jobs without the flag stay Blocked and stop the walk.
func (s *jobService) cancelDownstream(ctx context.Context, tx *gorm.DB, jobID int64) ([]int64, error) {
	visited := map[int64]bool{jobID: true}
	frontier := []int64{jobID}
	var canceled []int64
	for depth := 0; depth < reversalDepthCap && len(frontier) > 0; depth++ {
		dependents, err := s.jobs.DependentsOf(ctx, tx, frontier)
		if err != nil {
			return nil, err
		}
		var candidates []int64
		for _, downstreams := range dependents {
			for _, id := range downstreams {
				if visited[id] {
					continue
				}
				visited[id] = true
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			break
		}
		jobs, err := s.jobs.GetByIDs(ctx, tx, candidates)
		if err != nil {
			return nil, err
		}
		var next []int64
		for _, job := range jobs {
			if !job.CancelOnBlockingJobFailure || job.Status.IsTerminal() {
				continue
			}
			canceled = append(canceled, job.ID)
			next = append(next, job.ID)
		}
		frontier = next
	}
	if len(canceled) == 0 {
		return nil, nil
	}
	if err := s.jobs.SetStatus(ctx, tx, canceled, types.JobCanceled); err != nil {
		return nil, err
	}
	if err := s.jobs.ClearActiveComputeNodes(ctx, tx, 0, canceled); err != nil {
		return nil, err
	}
	return canceled, nil
}

// workflowDone reports whether every job in the workflow is terminal.
func (s *jobService) workflowDone(ctx context.Context, tx *gorm.DB, workflowID int64) (bool, error) {
	counts, err := s.workflows.JobStatusCounts(ctx, tx, workflowID)
	if err != nil {
		return false, err
	}
	total := int64(0)
	for status, n := range counts {
		if !status.IsTerminal() {
			return false, nil
		}
		total += n
	}
	return total > 0, nil
}

// Retry returns a finished job to Ready while it still has attempts left.
// Callers may supply their own retry ceiling; the server default applies
// otherwise.
func (s *jobService) Retry(ctx context.Context, workflowID, jobID int64, maxRetries *int) (*types.Job, error) {
	limit := s.maxRetries
	if maxRetries != nil && *maxRetries > 0 {
		limit = *maxRetries
	}
	var retried *types.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.getInWorkflow(ctx, tx, workflowID, jobID)
		if err != nil {
			return err
		}
		if !job.Status.IsComplete() {
			return apierr.Conflict("job %d is %s, not retryable", jobID, job.Status)
		}
		internal, err := s.jobs.GetInternal(ctx, tx, jobID)
		if err != nil {
			return err
		}
		attempts := 0
		if internal != nil {
			attempts = internal.Attempts
		}
		if attempts >= limit {
			return apierr.Unprocessable("job %d exhausted its %d retries", jobID, limit)
		}
		if err := s.jobs.UpdateInternalColumns(ctx, tx, jobID, map[string]interface{}{
			"attempts": attempts + 1,
		}); err != nil {
			return err
		}
		if err := s.jobs.SetStatus(ctx, tx, []int64{jobID}, types.JobReady); err != nil {
			return err
		}
		retried, err = s.jobs.GetByID(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return retried, nil
}

// ManageStatusChange applies a caller-requested transition after checking
// it against the legality table. The move is conditional on the observed
// status so concurrent changes lose cleanly.
func (s *jobService) ManageStatusChange(ctx context.Context, workflowID, jobID int64, to types.JobStatus) (*types.Job, error) {
	var changed *types.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.getInWorkflow(ctx, tx, workflowID, jobID)
		if err != nil {
			return err
		}
		if job.Status == to {
			changed = job
			return nil
		}
		if !transitionAllowed(job.Status, to) {
			return apierr.Unprocessable("illegal status change %s -> %s for job %d", job.Status, to, jobID)
		}
		ok, err := s.jobs.UpdateStatusIf(ctx, tx, jobID, job.Status, to)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("job %d status changed concurrently", jobID)
		}
		if to == types.JobUninitialized || to == types.JobCanceled || to == types.JobTerminated {
			if err := s.jobs.ClearActiveComputeNodes(ctx, tx, 0, []int64{jobID}); err != nil {
				return err
			}
		}
		changed, err = s.jobs.GetByID(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}
	return changed, nil
}
