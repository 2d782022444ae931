package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

func (env *testEnv) registerNode(t *testing.T, workflowID int64) *types.ComputeNode {
	t.Helper()
	node, err := env.nodes.Register(context.Background(), workflowID, &types.ComputeNode{
		Hostname: "worker-1",
		PID:      4242,
	})
	if err != nil {
		t.Fatalf("register node: %v", err)
	}
	return node
}

func TestJobLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b", a.ID)

	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got := env.jobStatus(t, a.ID); got != types.JobReady {
		t.Fatalf("job a: expected ready, got %s", got)
	}
	if got := env.jobStatus(t, b.ID); got != types.JobBlocked {
		t.Fatalf("job b: expected blocked, got %s", got)
	}

	result, err := env.claims.ClaimNextJobs(ctx, wf.ID, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(result.Jobs) != 1 || result.Jobs[0].ID != a.ID {
		t.Fatalf("expected job a claimed, got %v", result.Jobs)
	}

	node := env.registerNode(t, wf.ID)
	started, err := env.jobs.Start(ctx, wf.ID, a.ID, node.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != types.JobRunning {
		t.Fatalf("expected running, got %s", started.Status)
	}
	internal, err := env.jobRepo.GetInternal(ctx, nil, a.ID)
	if err != nil || internal == nil {
		t.Fatalf("get internal: %+v err=%v", internal, err)
	}
	if internal.RunID != 1 {
		t.Fatalf("expected run_id 1 on first start, got %d", internal.RunID)
	}
	if internal.ActiveComputeNodeID == nil || *internal.ActiveComputeNodeID != node.ID {
		t.Fatalf("expected active node %d, got %v", node.ID, internal.ActiveComputeNodeID)
	}

	completed, err := env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{
		Status:          types.JobCompleted,
		ReturnCode:      0,
		ExecTimeMinutes: 0.5,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != types.JobCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	internal, err = env.jobRepo.GetInternal(ctx, nil, a.ID)
	if err != nil {
		t.Fatalf("get internal: %v", err)
	}
	if internal.ActiveComputeNodeID != nil {
		t.Fatalf("active node should clear on completion")
	}
	// Completion advances the graph; no extra initialize call needed.
	if got := env.jobStatus(t, b.ID); got != types.JobReady {
		t.Fatalf("job b should unblock on upstream completion, got %s", got)
	}
	envelope, err := env.resultRepo.List(ctx, nil, wf.ID, &a.ID, true, repos.Page{})
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	results := *envelope.Items.(*[]types.Result)
	if len(results) != 1 || results[0].ComputeNodeID != node.ID || results[0].RunID != 1 {
		t.Fatalf("unexpected result rows: %+v", results)
	}
}

func TestCompleteRejectsNonTerminalStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")
	env.setStatus(t, types.JobRunning, a.ID)

	_, err := env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{Status: types.JobRunning})
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422, got %v", err)
	}
	_, err = env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{Status: types.JobCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Second completion finds the job no longer running.
	_, err = env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{Status: types.JobCompleted})
	if err == nil || apierr.Status(err) != 409 {
		t.Fatalf("expected 409 on double completion, got %v", err)
	}
}

func TestFailureCancelsFlaggedDownstream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	flagged, err := env.jobs.CreateJobs(ctx, wf.ID, []CreateJobInput{
		{Name: "b", Command: "echo b", DependsOn: []int64{a.ID}, CancelOnBlockingJobFailure: true},
	})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	b := flagged[0]
	flagged, err = env.jobs.CreateJobs(ctx, wf.ID, []CreateJobInput{
		{Name: "c", Command: "echo c", DependsOn: []int64{b.ID}, CancelOnBlockingJobFailure: true},
	})
	if err != nil {
		t.Fatalf("create c: %v", err)
	}
	c := flagged[0]
	d := env.createJob(t, wf.ID, "d", a.ID)

	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.setStatus(t, types.JobRunning, a.ID)

	if _, err := env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{
		Status:     types.JobFailed,
		ReturnCode: 1,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if got := env.jobStatus(t, b.ID); got != types.JobCanceled {
		t.Fatalf("flagged b should cancel, got %s", got)
	}
	// The walk continues through canceled jobs.
	if got := env.jobStatus(t, c.ID); got != types.JobCanceled {
		t.Fatalf("transitive c should cancel, got %s", got)
	}
	// d did not opt in; its upstream finished, so it becomes ready.
	if got := env.jobStatus(t, d.ID); got != types.JobReady {
		t.Fatalf("unflagged d should become ready, got %s", got)
	}
}

func TestCancellationDoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	flagged, err := env.jobs.CreateJobs(ctx, wf.ID, []CreateJobInput{
		{Name: "b", Command: "echo b", DependsOn: []int64{a.ID}, CancelOnBlockingJobFailure: true},
	})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	b := flagged[0]
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.setStatus(t, types.JobRunning, a.ID)

	if _, err := env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{
		Status: types.JobCanceled,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Only a failed upstream cancels opted-in dependents.
	if got := env.jobStatus(t, b.ID); got != types.JobReady {
		t.Fatalf("expected b ready after canceled upstream, got %s", got)
	}
}

func TestCompletionPromotesOnlyFullySatisfiedDependents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b")
	c := env.createJob(t, wf.ID, "c", a.ID, b.ID)

	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.setStatus(t, types.JobRunning, a.ID, b.ID)

	if _, err := env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{Status: types.JobCompleted}); err != nil {
		t.Fatalf("complete a: %v", err)
	}
	if got := env.jobStatus(t, c.ID); got != types.JobBlocked {
		t.Fatalf("c still has an unfinished upstream, got %s", got)
	}
	if _, err := env.jobs.Complete(ctx, wf.ID, b.ID, CompleteJobInput{Status: types.JobCompleted}); err != nil {
		t.Fatalf("complete b: %v", err)
	}
	if got := env.jobStatus(t, c.ID); got != types.JobReady {
		t.Fatalf("c should be ready once both upstreams finish, got %s", got)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")

	for i := 0; i < 3; i++ {
		env.setStatus(t, types.JobFailed, a.ID)
		retried, err := env.jobs.Retry(ctx, wf.ID, a.ID, nil)
		if err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
		if retried.Status != types.JobReady {
			t.Fatalf("retry %d: expected ready, got %s", i, retried.Status)
		}
	}
	env.setStatus(t, types.JobFailed, a.ID)
	_, err := env.jobs.Retry(ctx, wf.ID, a.ID, nil)
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 after exhausting retries, got %v", err)
	}
}

func TestRetryHonorsCallerLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")

	one := 1
	env.setStatus(t, types.JobFailed, a.ID)
	if _, err := env.jobs.Retry(ctx, wf.ID, a.ID, &one); err != nil {
		t.Fatalf("first retry: %v", err)
	}
	env.setStatus(t, types.JobFailed, a.ID)
	_, err := env.jobs.Retry(ctx, wf.ID, a.ID, &one)
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 at the caller's limit, got %v", err)
	}
	// The server default still has headroom.
	if _, err := env.jobs.Retry(ctx, wf.ID, a.ID, nil); err != nil {
		t.Fatalf("retry with default limit: %v", err)
	}
}

func TestRetryRequiresFinishedJob(t *testing.T) {
	env := newTestEnv(t)
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")
	env.setStatus(t, types.JobRunning, a.ID)

	_, err := env.jobs.Retry(context.Background(), wf.ID, a.ID, nil)
	if err == nil || apierr.Status(err) != 409 {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestManageStatusChangeLegality(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")
	env.setStatus(t, types.JobReady, a.ID)

	// Ready can be disabled but never jumped straight to running.
	_, err := env.jobs.ManageStatusChange(ctx, wf.ID, a.ID, types.JobRunning)
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 for ready->running, got %v", err)
	}
	changed, err := env.jobs.ManageStatusChange(ctx, wf.ID, a.ID, types.JobDisabled)
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if changed.Status != types.JobDisabled {
		t.Fatalf("expected disabled, got %s", changed.Status)
	}
	// Same-status request is a no-op, not a conflict.
	if _, err := env.jobs.ManageStatusChange(ctx, wf.ID, a.ID, types.JobDisabled); err != nil {
		t.Fatalf("no-op change: %v", err)
	}
	// Terminal statuses route back through uninitialized.
	changed, err = env.jobs.ManageStatusChange(ctx, wf.ID, a.ID, types.JobUninitialized)
	if err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if changed.Status != types.JobUninitialized {
		t.Fatalf("expected uninitialized, got %s", changed.Status)
	}
}

func TestUpdateRestrictedFieldsAfterInitialize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")
	env.setStatus(t, types.JobReady, a.ID)

	newCommand := "echo changed"
	_, err := env.jobs.Update(ctx, wf.ID, a.ID, UpdateJobInput{Command: &newCommand})
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 editing command of a ready job, got %v", err)
	}
	// Scheduler references stay mutable for any status.
	schedulerID := int64(5)
	updated, err := env.jobs.Update(ctx, wf.ID, a.ID, UpdateJobInput{SchedulerID: &schedulerID})
	if err != nil {
		t.Fatalf("update scheduler: %v", err)
	}
	if updated.SchedulerID == nil || *updated.SchedulerID != schedulerID {
		t.Fatalf("scheduler id not applied: %+v", updated.SchedulerID)
	}
}

func TestUpdateJobStatusOnlyDisables(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")
	env.setStatus(t, types.JobReady, a.ID)

	disabled := types.JobDisabled
	updated, err := env.jobs.Update(ctx, wf.ID, a.ID, UpdateJobInput{Status: &disabled})
	if err != nil {
		t.Fatalf("disable via update: %v", err)
	}
	if updated.Status != types.JobDisabled {
		t.Fatalf("expected disabled, got %s", updated.Status)
	}

	b := env.createJob(t, wf.ID, "b")
	completed := types.JobCompleted
	_, err = env.jobs.Update(ctx, wf.ID, b.ID, UpdateJobInput{Status: &completed})
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 for update to a non-disabled status, got %v", err)
	}

	env.setStatus(t, types.JobRunning, b.ID)
	_, err = env.jobs.Update(ctx, wf.ID, b.ID, UpdateJobInput{Status: &disabled})
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 disabling a running job, got %v", err)
	}
}

func TestWorkflowCompletionFiresActions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	a := env.createJob(t, wf.ID, "a")

	action, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnWorkflowComplete,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["teardown"]}`),
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	env.setStatus(t, types.JobRunning, a.ID)
	if _, err := env.jobs.Complete(ctx, wf.ID, a.ID, CompleteJobInput{Status: types.JobCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pending, err := env.actions.GetPending(ctx, wf.ID, nil)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != action.ID {
		t.Fatalf("expected workflow-complete action pending, got %v", pending)
	}
	got, err := env.workflows.Get(ctx, wf.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.Status != "complete" {
		t.Fatalf("expected workflow status complete, got %s", got.Status)
	}
	done, err := env.workflows.IsComplete(ctx, wf.ID)
	if err != nil || !done {
		t.Fatalf("expected workflow complete, done=%v err=%v", done, err)
	}
}

func TestCreateJobsValidatesDependencies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	_, err := env.jobs.CreateJobs(ctx, wf.ID, []CreateJobInput{
		{Name: "orphan", Command: "echo", DependsOn: []int64{99999}},
	})
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 for unknown dependency, got %v", err)
	}
	_, err = env.jobs.CreateJobs(ctx, wf.ID, []CreateJobInput{{Name: "nocmd"}})
	if err == nil || apierr.Status(err) != 422 {
		t.Fatalf("expected 422 for missing command, got %v", err)
	}
}

func TestDeactivateNodeTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	node := env.registerNode(t, wf.ID)

	deactivated, err := env.nodes.Deactivate(ctx, wf.ID, node.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.IsActive {
		t.Fatalf("node should be inactive")
	}
	if deactivated.Duration == nil {
		t.Fatalf("deactivation should record a duration")
	}
	_, err = env.nodes.Deactivate(ctx, wf.ID, node.ID)
	if err == nil || apierr.Status(err) != 409 {
		t.Fatalf("expected 409 on second deactivate, got %v", err)
	}
}
