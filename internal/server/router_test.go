package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/db"
	"github.com/NREL/torc-sub002/internal/handlers"
	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/services"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	svc, err := db.NewService(db.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "api.db"),
	}, log)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gdb := svc.DB()

	workflowRepo := repos.NewWorkflowRepo(gdb, log)
	jobRepo := repos.NewJobRepo(gdb, log)
	fileRepo := repos.NewFileRepo(gdb, log)
	userDataRepo := repos.NewUserDataRepo(gdb, log)
	requirementsRepo := repos.NewResourceRequirementsRepo(gdb, log)
	computeNodeRepo := repos.NewComputeNodeRepo(gdb, log)
	schedulerRepo := repos.NewSchedulerRepo(gdb, log)
	resultRepo := repos.NewResultRepo(gdb, log)
	eventRepo := repos.NewEventRepo(gdb, log)
	actionRepo := repos.NewActionRepo(gdb, log)
	remoteWorkerRepo := repos.NewRemoteWorkerRepo(gdb, log)
	failureHandlerRepo := repos.NewFailureHandlerRepo(gdb, log)
	accessRepo := repos.NewAccessRepo(gdb, log)

	hub := sse.NewHub(log)
	actionService := services.NewActionService(gdb, actionRepo, jobRepo, log)
	graphService := services.NewGraphService(gdb, jobRepo, userDataRepo, eventRepo, actionService, log)
	claimService := services.NewClaimService(gdb, jobRepo, log)
	jobService := services.NewJobService(gdb, jobRepo, workflowRepo, resultRepo, eventRepo, actionService, 3, log)
	workflowService := services.NewWorkflowService(gdb, workflowRepo, jobRepo, eventRepo, accessRepo, actionService, graphService, false, log)
	computeNodeService := services.NewComputeNodeService(gdb, computeNodeRepo, eventRepo, actionService, log)

	return NewRouter(RouterConfig{
		WorkflowService:       workflowService,
		HealthHandler:         handlers.NewHealthHandler(),
		WorkflowHandler:       handlers.NewWorkflowHandler(workflowService, graphService, hub),
		JobHandler:            handlers.NewJobHandler(jobService, hub),
		ClaimHandler:          handlers.NewClaimHandler(claimService, hub),
		ActionHandler:         handlers.NewActionHandler(actionService, hub),
		FileHandler:           handlers.NewFileHandler(fileRepo, hub),
		UserDataHandler:       handlers.NewUserDataHandler(userDataRepo, hub),
		RequirementsHandler:   handlers.NewResourceRequirementsHandler(requirementsRepo, hub),
		SchedulerHandler:      handlers.NewSchedulerHandler(schedulerRepo, hub),
		ResultHandler:         handlers.NewResultHandler(resultRepo),
		EventHandler:          handlers.NewEventHandler(eventRepo),
		ComputeNodeHandler:    handlers.NewComputeNodeHandler(computeNodeService, hub),
		RemoteWorkerHandler:   handlers.NewRemoteWorkerHandler(remoteWorkerRepo),
		FailureHandlerHandler: handlers.NewFailureHandlerHandler(failureHandlerRepo),
		SSEHandler:            handlers.NewSSEHandler(hub),
	})
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestPingRoute(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, BasePath+"/ping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWorkflowNotFoundShape(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, BasePath+"/workflows/424242", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	var apiErr handlers.APIError
	decode(t, w, &apiErr)
	if apiErr.Message == "" || apiErr.Code == "" {
		t.Fatalf("error payload incomplete: %s", w.Body.String())
	}
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, BasePath+"/workflows", gin.H{"name": "demo", "user": "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create workflow: %d: %s", w.Code, w.Body.String())
	}
	var wf types.Workflow
	decode(t, w, &wf)
	wfPath := BasePath + "/workflows/" + strconv.FormatInt(wf.ID, 10)

	w = do(t, r, http.MethodPost, wfPath+"/jobs", gin.H{"name": "a", "command": "echo a"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job a: %d: %s", w.Code, w.Body.String())
	}
	var a types.Job
	decode(t, w, &a)

	w = do(t, r, http.MethodPost, wfPath+"/jobs", gin.H{
		"jobs": []gin.H{{"name": "b", "command": "echo b", "depends_on": []int64{a.ID}}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job b: %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, wfPath+"/initialize-jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize: %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, wfPath+"/claim-next-jobs?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim: %d: %s", w.Code, w.Body.String())
	}
	var claim struct {
		Jobs   []types.Job `json:"jobs"`
		Reason string      `json:"reason"`
	}
	decode(t, w, &claim)
	if len(claim.Jobs) != 1 || claim.Jobs[0].ID != a.ID {
		t.Fatalf("expected job a claimed, got %s", w.Body.String())
	}

	w = do(t, r, http.MethodGet, wfPath+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d: %s", w.Code, w.Body.String())
	}
	var summary types.WorkflowStatusSummary
	decode(t, w, &summary)
	if summary.TotalJobs != 2 || summary.JobCounts["pending"] != 1 || summary.JobCounts["blocked"] != 1 {
		t.Fatalf("unexpected summary: %s", w.Body.String())
	}

	w = do(t, r, http.MethodPost, wfPath+"/reset-jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset-jobs: %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodDelete, wfPath, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete workflow: expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.Len() != 0 {
		t.Fatalf("delete should have no body, got %s", w.Body.String())
	}
	w = do(t, r, http.MethodGet, wfPath, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestInitializeClearsEphemeralUserDataByDefault(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, BasePath+"/workflows", gin.H{"name": "demo", "user": "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create workflow: %d: %s", w.Code, w.Body.String())
	}
	var wf types.Workflow
	decode(t, w, &wf)
	wfPath := BasePath + "/workflows/" + strconv.FormatInt(wf.ID, 10)

	w = do(t, r, http.MethodPost, wfPath+"/user-data", gin.H{
		"name":         "scratch",
		"is_ephemeral": true,
		"data":         gin.H{"cursor": 42},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user data: %d: %s", w.Code, w.Body.String())
	}
	var ud types.UserData
	decode(t, w, &ud)

	w = do(t, r, http.MethodPost, wfPath+"/initialize-jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize: %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodGet, wfPath+"/user-data/"+strconv.FormatInt(ud.ID, 10), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get user data: %d: %s", w.Code, w.Body.String())
	}
	var after types.UserData
	decode(t, w, &after)
	if len(after.Data) != 0 && string(after.Data) != "null" {
		t.Fatalf("ephemeral data should clear by default, got %s", string(after.Data))
	}

	w = do(t, r, http.MethodPost, wfPath+"/user-data", gin.H{
		"name":         "scratch2",
		"is_ephemeral": true,
		"data":         gin.H{"cursor": 7},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user data: %d: %s", w.Code, w.Body.String())
	}
	var ud2 types.UserData
	decode(t, w, &ud2)

	w = do(t, r, http.MethodPost, wfPath+"/initialize-jobs?clear_ephemeral_user_data=false", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize: %d: %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodGet, wfPath+"/user-data/"+strconv.FormatInt(ud2.ID, 10), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get user data: %d: %s", w.Code, w.Body.String())
	}
	var kept types.UserData
	decode(t, w, &kept)
	if len(kept.Data) == 0 || string(kept.Data) == "null" {
		t.Fatalf("explicit opt-out should keep ephemeral data")
	}
}
