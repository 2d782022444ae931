package services

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/types"
)

func TestCreateActionValidatesConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	cases := []struct {
		name   string
		input  CreateActionInput
		wantOK bool
	}{
		{
			name: "valid run_commands",
			input: CreateActionInput{
				TriggerType:  types.TriggerOnWorkflowStart,
				ActionType:   types.ActionRunCommands,
				ActionConfig: json.RawMessage(`{"commands":["echo hi"]}`),
			},
			wantOK: true,
		},
		{
			name: "empty commands",
			input: CreateActionInput{
				TriggerType:  types.TriggerOnWorkflowStart,
				ActionType:   types.ActionRunCommands,
				ActionConfig: json.RawMessage(`{"commands":[]}`),
			},
		},
		{
			name: "extra key in run_commands",
			input: CreateActionInput{
				TriggerType:  types.TriggerOnWorkflowStart,
				ActionType:   types.ActionRunCommands,
				ActionConfig: json.RawMessage(`{"commands":["a"],"shell":"bash"}`),
			},
		},
		{
			name: "valid schedule_nodes",
			input: CreateActionInput{
				TriggerType:  types.TriggerOnJobsReady,
				ActionType:   types.ActionScheduleNodes,
				ActionConfig: json.RawMessage(`{"scheduler_id":3,"scheduler_type":"slurm","num_allocations":2}`),
			},
			wantOK: true,
		},
		{
			name: "schedule_nodes wrong type",
			input: CreateActionInput{
				TriggerType:  types.TriggerOnJobsReady,
				ActionType:   types.ActionScheduleNodes,
				ActionConfig: json.RawMessage(`{"scheduler_id":"three"}`),
			},
		},
		{
			name: "schedule_nodes unknown key",
			input: CreateActionInput{
				TriggerType:  types.TriggerOnJobsReady,
				ActionType:   types.ActionScheduleNodes,
				ActionConfig: json.RawMessage(`{"partition":"debug"}`),
			},
		},
		{
			name: "bad trigger",
			input: CreateActionInput{
				TriggerType:  types.TriggerType("on_coffee_break"),
				ActionType:   types.ActionRunCommands,
				ActionConfig: json.RawMessage(`{"commands":["a"]}`),
			},
		},
	}
	for _, tc := range cases {
		_, err := env.actions.Create(ctx, wf.ID, tc.input)
		if tc.wantOK && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.wantOK && err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestRequiredTriggersFromJobList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b")

	action, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnJobsComplete,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["notify"]}`),
		JobIDs:       []int64{a.ID, b.ID},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if action.RequiredTriggers != 2 {
		t.Fatalf("expected required_triggers 2, got %d", action.RequiredTriggers)
	}

	single, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnWorkerStart,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["warmup"]}`),
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if single.RequiredTriggers != 1 {
		t.Fatalf("expected required_triggers 1, got %d", single.RequiredTriggers)
	}
}

func TestJobScopedTriggerCounting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	b := env.createJob(t, wf.ID, "b")
	other := env.createJob(t, wf.ID, "other")

	action, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnJobsComplete,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["notify"]}`),
		JobIDs:       []int64{a.ID, b.ID},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	// An unwatched job completing does not advance the count.
	if err := env.actions.CheckAndTriggerActions(ctx, nil, wf.ID, types.TriggerOnJobsComplete, []int64{other.ID}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	got, err := env.actions.Get(ctx, wf.ID, action.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TriggerCount != 0 {
		t.Fatalf("expected count 0, got %d", got.TriggerCount)
	}

	if err := env.actions.CheckAndTriggerActions(ctx, nil, wf.ID, types.TriggerOnJobsComplete, []int64{a.ID}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	pending, err := env.actions.GetPending(ctx, wf.ID, nil)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("action not yet satisfied, pending=%v", pending)
	}

	if err := env.actions.CheckAndTriggerActions(ctx, nil, wf.ID, types.TriggerOnJobsComplete, []int64{b.ID}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	pending, err = env.actions.GetPending(ctx, wf.ID, nil)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != action.ID {
		t.Fatalf("expected the action pending, got %v", pending)
	}
}

func TestClaimActionSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	action, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnWorkflowStart,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["setup"]}`),
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	var wins atomic.Int32
	g := errgroup.Group{}
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			_, err := env.actions.Claim(ctx, wf.ID, action.ID, nil)
			if err == nil {
				wins.Add(1)
				return nil
			}
			if apierr.Status(err) == 409 {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent claims: %v", err)
	}
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestClaimPersistentActionRepeats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	action, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnWorkerStart,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["mount scratch"]}`),
		Persistent:   true,
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	for i := 0; i < 3; i++ {
		claimed, err := env.actions.Claim(ctx, wf.ID, action.ID, nil)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if claimed.Executed {
			t.Fatalf("persistent action must not latch executed")
		}
		if claimed.ExecutedAt == nil {
			t.Fatalf("persistent claim should record executed_at")
		}
	}
}

func TestClaimActionWrongWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)
	other := env.createWorkflow(t)

	action, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnWorkflowStart,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["x"]}`),
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	_, err = env.actions.Claim(ctx, other.ID, action.ID, nil)
	if err == nil || apierr.Status(err) != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestResetForReinitialize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wf := env.createWorkflow(t)

	a := env.createJob(t, wf.ID, "a")
	env.setStatus(t, types.JobCompleted, a.ID)

	scoped, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnJobsComplete,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["scoped"]}`),
		JobIDs:       []int64{a.ID},
	})
	if err != nil {
		t.Fatalf("create scoped action: %v", err)
	}
	recovery, err := env.actions.Create(ctx, wf.ID, CreateActionInput{
		TriggerType:  types.TriggerOnWorkflowStart,
		ActionType:   types.ActionRunCommands,
		ActionConfig: json.RawMessage(`{"commands":["recover"]}`),
		IsRecovery:   true,
	})
	if err != nil {
		t.Fatalf("create recovery action: %v", err)
	}
	// Latch the scoped action as executed, then rewind.
	if err := env.actions.CheckAndTriggerActions(ctx, nil, wf.ID, types.TriggerOnJobsComplete, []int64{a.ID}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if _, err := env.actions.Claim(ctx, wf.ID, scoped.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := env.actions.ResetForReinitialize(ctx, nil, wf.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := env.actions.Get(ctx, wf.ID, recovery.ID); apierr.Status(err) != 404 {
		t.Fatalf("recovery action should be deleted, got %v", err)
	}
	got, err := env.actions.Get(ctx, wf.ID, scoped.ID)
	if err != nil {
		t.Fatalf("get scoped: %v", err)
	}
	if got.Executed {
		t.Fatalf("executed should be cleared")
	}
	// Job a is still complete, so the scoped count recomputes to 1.
	if got.TriggerCount != 1 {
		t.Fatalf("expected recomputed trigger count 1, got %d", got.TriggerCount)
	}
}
