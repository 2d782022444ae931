package services

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/NREL/torc-sub002/internal/types"
)

func TestInitializeJobsDerivesReadiness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b", a.ID)
	c := env.createJob(t, wf.ID, "c", a.ID)
	d := env.createJob(t, wf.ID, "d", b.ID, c.ID)

	result, err := env.graph.InitializeJobs(ctx, wf.ID, false, false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(result.ReadyJobIDs) != 1 || result.ReadyJobIDs[0] != a.ID {
		t.Fatalf("expected only job a ready, got %v", result.ReadyJobIDs)
	}
	if len(result.BlockedJobIDs) != 3 {
		t.Fatalf("expected 3 blocked jobs, got %v", result.BlockedJobIDs)
	}
	if got := env.jobStatus(t, d.ID); got != types.JobBlocked {
		t.Fatalf("job d: expected blocked, got %s", got)
	}
}

func TestInitializeJobsDiamondProgression(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b", a.ID)
	c := env.createJob(t, wf.ID, "c", a.ID)
	d := env.createJob(t, wf.ID, "d", b.ID, c.ID)

	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.setStatus(t, types.JobCompleted, a.ID)

	result, err := env.graph.InitializeJobs(ctx, wf.ID, false, false)
	if err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if len(result.ReadyJobIDs) != 2 {
		t.Fatalf("expected b and c ready after a completes, got %v", result.ReadyJobIDs)
	}
	if got := env.jobStatus(t, d.ID); got != types.JobBlocked {
		t.Fatalf("job d should stay blocked, got %s", got)
	}
	// Completed jobs are not re-derived.
	if got := env.jobStatus(t, a.ID); got != types.JobCompleted {
		t.Fatalf("job a should stay completed, got %s", got)
	}
	env.setStatus(t, types.JobCompleted, b.ID, c.ID)
	result, err = env.graph.InitializeJobs(ctx, wf.ID, false, false)
	if err != nil {
		t.Fatalf("third initialize: %v", err)
	}
	if len(result.ReadyJobIDs) != 1 || result.ReadyJobIDs[0] != d.ID {
		t.Fatalf("expected only d ready, got %v", result.ReadyJobIDs)
	}
}

func TestInputHashDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b", a.ID)

	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	first, err := env.jobRepo.GetInternal(ctx, nil, b.ID)
	if err != nil || first == nil || first.InputHash == nil {
		t.Fatalf("expected stored hash, got %+v err=%v", first, err)
	}
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	second, err := env.jobRepo.GetInternal(ctx, nil, b.ID)
	if err != nil || second == nil || second.InputHash == nil {
		t.Fatalf("expected stored hash, got %+v err=%v", second, err)
	}
	if *first.InputHash != *second.InputHash {
		t.Fatalf("hash not deterministic: %s vs %s", *first.InputHash, *second.InputHash)
	}
}

func TestProcessChangedJobInputs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	ud := &types.UserData{WorkflowID: wf.ID, Name: "params", Data: datatypes.JSON(`{"alpha":1}`)}
	if err := env.userDataRepo.Create(ctx, nil, ud); err != nil {
		t.Fatalf("create user data: %v", err)
	}
	created, err := env.jobs.CreateJobs(ctx, wf.ID, []CreateJobInput{{
		Name:             "consumer",
		Command:          "run",
		InputUserDataIDs: []int64{ud.ID},
	}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	job := created[0]

	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	names, err := env.graph.ProcessChangedJobInputs(ctx, wf.ID, false)
	if err != nil {
		t.Fatalf("process unchanged: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("no inputs changed yet, got %v", names)
	}

	ud.Data = datatypes.JSON(`{"alpha":2}`)
	if err := env.userDataRepo.Update(ctx, nil, ud); err != nil {
		t.Fatalf("update user data: %v", err)
	}

	names, err = env.graph.ProcessChangedJobInputs(ctx, wf.ID, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(names) != 1 || names[0] != "consumer" {
		t.Fatalf("dry run should report consumer, got %v", names)
	}
	if got := env.jobStatus(t, job.ID); got != types.JobReady {
		t.Fatalf("dry run must not reset; got %s", got)
	}

	names, err = env.graph.ProcessChangedJobInputs(ctx, wf.ID, false)
	if err != nil {
		t.Fatalf("process changed: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected one reset job, got %v", names)
	}
	if got := env.jobStatus(t, job.ID); got != types.JobUninitialized {
		t.Fatalf("expected uninitialized after reset, got %s", got)
	}
}

func TestResetJobStatusFailedOnlyReversesDownstream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b", a.ID)
	c := env.createJob(t, wf.ID, "c", b.ID)

	env.setStatus(t, types.JobCompleted, a.ID, c.ID)
	env.setStatus(t, types.JobFailed, b.ID)

	if err := env.graph.ResetJobStatus(ctx, wf.ID, true); err != nil {
		t.Fatalf("reset failed-only: %v", err)
	}
	if got := env.jobStatus(t, a.ID); got != types.JobCompleted {
		t.Fatalf("upstream a must keep its result, got %s", got)
	}
	if got := env.jobStatus(t, b.ID); got != types.JobUninitialized {
		t.Fatalf("failed b should reset, got %s", got)
	}
	// c consumed b's output before b was reset, so its completion unwinds.
	if got := env.jobStatus(t, c.ID); got != types.JobUninitialized {
		t.Fatalf("downstream c should unwind, got %s", got)
	}
}

func TestResetJobStatusAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b", a.ID)
	env.setStatus(t, types.JobCompleted, a.ID)
	env.setStatus(t, types.JobRunning, b.ID)

	if err := env.graph.ResetJobStatus(ctx, wf.ID, false); err != nil {
		t.Fatalf("reset all: %v", err)
	}
	for _, id := range []int64{a.ID, b.ID} {
		if got := env.jobStatus(t, id); got != types.JobUninitialized {
			t.Fatalf("job %d: expected uninitialized, got %s", id, got)
		}
	}
}

func TestInitializeOnlyUninitializedLeavesOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b")
	env.setStatus(t, types.JobDisabled, b.ID)

	result, err := env.graph.InitializeJobs(ctx, wf.ID, true, false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(result.ReadyJobIDs) != 1 || result.ReadyJobIDs[0] != a.ID {
		t.Fatalf("expected only a ready, got %v", result.ReadyJobIDs)
	}
	if got := env.jobStatus(t, b.ID); got != types.JobDisabled {
		t.Fatalf("disabled job must stay disabled, got %s", got)
	}
}
