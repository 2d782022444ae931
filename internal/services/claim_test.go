package services

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/NREL/torc-sub002/internal/types"
)

func (env *testEnv) createRequirements(t *testing.T, workflowID int64, name string, cpus, gpus int, memBytes, runtimeS int64) int64 {
	t.Helper()
	rr := &types.ResourceRequirements{
		WorkflowID:  workflowID,
		Name:        name,
		NumCPUs:     cpus,
		NumGPUs:     gpus,
		NumNodes:    1,
		Memory:      "1m",
		MemoryBytes: memBytes,
		Runtime:     "PT1M",
		RuntimeS:    runtimeS,
	}
	if err := env.requirementsRepo.Create(context.Background(), nil, rr); err != nil {
		t.Fatalf("create requirements: %v", err)
	}
	return rr.ID
}

func (env *testEnv) createJobWithRequirements(t *testing.T, workflowID int64, name string, rrID int64) *types.Job {
	t.Helper()
	created, err := env.jobs.CreateJobs(context.Background(), workflowID, []CreateJobInput{{
		Name:                   name,
		Command:                "echo " + name,
		ResourceRequirementsID: &rrID,
	}})
	if err != nil {
		t.Fatalf("create job %s: %v", name, err)
	}
	return &created[0]
}

func TestClaimNextJobsRespectsLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	for i := 0; i < 100; i++ {
		env.createJob(t, wf.ID, "job")
	}
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := env.claims.ClaimNextJobs(ctx, wf.ID, 32)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Reason != ReasonClaimed {
		t.Fatalf("expected %q, got %q", ReasonClaimed, result.Reason)
	}
	if len(result.Jobs) != 32 {
		t.Fatalf("expected 32 claimed jobs, got %d", len(result.Jobs))
	}
	for _, job := range result.Jobs {
		if job.Status != types.JobPending {
			t.Fatalf("claimed job %d should be pending, got %s", job.ID, job.Status)
		}
	}
	counts, err := env.workflowRepo.JobStatusCounts(ctx, nil, wf.ID)
	if err != nil {
		t.Fatalf("status counts: %v", err)
	}
	if counts[types.JobReady] != 68 || counts[types.JobPending] != 32 {
		t.Fatalf("expected 68 ready / 32 pending, got %v", counts)
	}
}

func TestClaimNextJobsEmptyWorkflow(t *testing.T) {
	env := newTestEnv(t)
	wf := env.createWorkflow(t)

	result, err := env.claims.ClaimNextJobs(context.Background(), wf.ID, 4)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Reason != ReasonNoReadyJobs {
		t.Fatalf("expected %q, got %q", ReasonNoReadyJobs, result.Reason)
	}
	if len(result.Jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(result.Jobs))
	}
}

func TestClaimJobsBudgetAccounting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	rr := env.createRequirements(t, wf.ID, "two-cpu", 2, 0, 1<<30, 60)
	for i := 0; i < 5; i++ {
		env.createJobWithRequirements(t, wf.ID, "j", rr)
	}
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := env.claims.ClaimJobsBasedOnResources(ctx, wf.ID, types.ComputeNodesResources{
		NumCPUs:  4,
		MemoryGB: 8,
		NumNodes: 1,
	}, 10, SortNone, false)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// 4 CPUs fit two 2-CPU jobs regardless of the higher limit.
	if len(result.Jobs) != 2 {
		t.Fatalf("expected 2 claimed jobs, got %d", len(result.Jobs))
	}
}

func TestClaimJobsNoneFit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	rr := env.createRequirements(t, wf.ID, "huge", 64, 0, 1<<40, 60)
	env.createJobWithRequirements(t, wf.ID, "big", rr)
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := env.claims.ClaimJobsBasedOnResources(ctx, wf.ID, types.ComputeNodesResources{
		NumCPUs:  4,
		MemoryGB: 8,
		NumNodes: 1,
	}, 10, SortNone, false)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Reason != ReasonNoJobsFit {
		t.Fatalf("expected %q, got %q", ReasonNoJobsFit, result.Reason)
	}
}

func TestClaimJobsSortOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	small := env.createRequirements(t, wf.ID, "small", 1, 0, 1<<20, 60)
	gpu := env.createRequirements(t, wf.ID, "gpu", 1, 2, 1<<20, 60)
	long := env.createRequirements(t, wf.ID, "long", 1, 0, 1<<20, 3600)

	jSmall := env.createJobWithRequirements(t, wf.ID, "small", small)
	jGpu := env.createJobWithRequirements(t, wf.ID, "gpu", gpu)
	jLong := env.createJobWithRequirements(t, wf.ID, "long", long)
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := env.claims.ClaimJobsBasedOnResources(ctx, wf.ID, types.ComputeNodesResources{
		NumCPUs:  8,
		NumGPUs:  4,
		MemoryGB: 16,
		NumNodes: 1,
	}, 10, SortGpusRuntimeMemory, false)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(result.Jobs) != 3 {
		t.Fatalf("expected 3 claimed, got %d", len(result.Jobs))
	}
	want := []int64{jGpu.ID, jLong.ID, jSmall.ID}
	for i, job := range result.Jobs {
		if job.ID != want[i] {
			t.Fatalf("position %d: expected job %d, got %d", i, want[i], job.ID)
		}
	}
}

func TestClaimJobsStrictSchedulerMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	// Job has no scheduler reference; strict matching excludes it.
	env.createJob(t, wf.ID, "unscheduled")
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	schedulerID := int64(7)
	result, err := env.claims.ClaimJobsBasedOnResources(ctx, wf.ID, types.ComputeNodesResources{
		NumCPUs:           4,
		MemoryGB:          8,
		NumNodes:          1,
		SchedulerConfigID: &schedulerID,
	}, 10, SortNone, true)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Reason != ReasonSchedulerMismatch {
		t.Fatalf("expected %q, got %q", ReasonSchedulerMismatch, result.Reason)
	}
}

func TestClaimJobsInvalidTimeLimit(t *testing.T) {
	env := newTestEnv(t)
	wf := env.createWorkflow(t)

	bad := "four hours"
	_, err := env.claims.ClaimJobsBasedOnResources(context.Background(), wf.ID, types.ComputeNodesResources{
		NumCPUs:   4,
		MemoryGB:  8,
		NumNodes:  1,
		TimeLimit: &bad,
	}, 10, SortNone, false)
	if err == nil {
		t.Fatal("expected error for invalid time limit")
	}
}

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		env.createJob(t, wf.ID, "job")
	}
	if _, err := env.graph.InitializeJobs(ctx, wf.ID, false, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var mu sync.Mutex
	claimed := map[int64]int{}
	g := errgroup.Group{}
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for {
				result, err := env.claims.ClaimNextJobs(ctx, wf.ID, 3)
				if err != nil {
					return err
				}
				if len(result.Jobs) == 0 {
					return nil
				}
				mu.Lock()
				for _, job := range result.Jobs {
					claimed[job.ID]++
				}
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent claims: %v", err)
	}
	if len(claimed) != jobCount {
		t.Fatalf("expected all %d jobs claimed, got %d", jobCount, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %d claimed %d times", id, n)
		}
	}
}
