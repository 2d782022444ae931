package services

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/db"
	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/types"
)

type testEnv struct {
	db *gorm.DB

	workflowRepo     repos.WorkflowRepo
	jobRepo          repos.JobRepo
	userDataRepo     repos.UserDataRepo
	requirementsRepo repos.ResourceRequirementsRepo
	computeNodeRepo  repos.ComputeNodeRepo
	resultRepo       repos.ResultRepo
	eventRepo        repos.EventRepo
	actionRepo       repos.ActionRepo
	accessRepo       repos.AccessRepo

	actions   ActionService
	graph     GraphService
	claims    ClaimService
	jobs      JobService
	workflows WorkflowService
	nodes     ComputeNodeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	svc, err := db.NewService(db.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, log)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	gdb := svc.DB()

	env := &testEnv{
		db:               gdb,
		workflowRepo:     repos.NewWorkflowRepo(gdb, log),
		jobRepo:          repos.NewJobRepo(gdb, log),
		userDataRepo:     repos.NewUserDataRepo(gdb, log),
		requirementsRepo: repos.NewResourceRequirementsRepo(gdb, log),
		computeNodeRepo:  repos.NewComputeNodeRepo(gdb, log),
		resultRepo:       repos.NewResultRepo(gdb, log),
		eventRepo:        repos.NewEventRepo(gdb, log),
		actionRepo:       repos.NewActionRepo(gdb, log),
		accessRepo:       repos.NewAccessRepo(gdb, log),
	}
	env.actions = NewActionService(gdb, env.actionRepo, env.jobRepo, log)
	env.graph = NewGraphService(gdb, env.jobRepo, env.userDataRepo, env.eventRepo, env.actions, log)
	env.claims = NewClaimService(gdb, env.jobRepo, log)
	env.jobs = NewJobService(gdb, env.jobRepo, env.workflowRepo, env.resultRepo, env.eventRepo, env.actions, 3, log)
	env.workflows = NewWorkflowService(gdb, env.workflowRepo, env.jobRepo, env.eventRepo, env.accessRepo, env.actions, env.graph, false, log)
	env.nodes = NewComputeNodeService(gdb, env.computeNodeRepo, env.eventRepo, env.actions, log)
	return env
}

func (env *testEnv) createWorkflow(t *testing.T) *types.Workflow {
	t.Helper()
	wf, err := env.workflows.Create(context.Background(), CreateWorkflowInput{Name: "test", User: "tester"})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return wf
}

func (env *testEnv) createJob(t *testing.T, workflowID int64, name string, dependsOn ...int64) *types.Job {
	t.Helper()
	created, err := env.jobs.CreateJobs(context.Background(), workflowID, []CreateJobInput{{
		Name:      name,
		Command:   "echo " + name,
		DependsOn: dependsOn,
	}})
	if err != nil {
		t.Fatalf("create job %s: %v", name, err)
	}
	return &created[0]
}

func (env *testEnv) jobStatus(t *testing.T, jobID int64) types.JobStatus {
	t.Helper()
	job, err := env.jobRepo.GetByID(context.Background(), nil, jobID)
	if err != nil {
		t.Fatalf("get job %d: %v", jobID, err)
	}
	if job == nil {
		t.Fatalf("job %d vanished", jobID)
	}
	return job.Status
}

func (env *testEnv) setStatus(t *testing.T, status types.JobStatus, jobIDs ...int64) {
	t.Helper()
	if err := env.jobRepo.SetStatus(context.Background(), nil, jobIDs, status); err != nil {
		t.Fatalf("set status: %v", err)
	}
}
