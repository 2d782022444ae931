package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NREL/torc-sub002/internal/config"
	"github.com/NREL/torc-sub002/internal/db"
	"github.com/NREL/torc-sub002/internal/handlers"
	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/observability"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/server"
	"github.com/NREL/torc-sub002/internal/services"
	"github.com/NREL/torc-sub002/internal/sse"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "torc-server",
		Version:     handlers.Version,
	})

	dbService, err := db.NewService(db.Config{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DBDSN,
	}, log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Fatal("Database migration failed", "error", err)
	}
	gdb := dbService.DB()

	log.Info("Setting up repos...")
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

	log.Info("Setting up SSE hub...")
	hub := sse.NewHub(log)

	log.Info("Setting up services...")
	actionService := services.NewActionService(gdb, actionRepo, jobRepo, log)
	graphService := services.NewGraphService(gdb, jobRepo, userDataRepo, eventRepo, actionService, log)
	claimService := services.NewClaimService(gdb, jobRepo, log)
	jobService := services.NewJobService(gdb, jobRepo, workflowRepo, resultRepo, eventRepo, actionService, 3, log)
	workflowService := services.NewWorkflowService(gdb, workflowRepo, jobRepo, eventRepo, accessRepo, actionService, graphService, cfg.EnforceAccess, log)
	computeNodeService := services.NewComputeNodeService(gdb, computeNodeRepo, eventRepo, actionService, log)

	srv := server.NewServer(server.RouterConfig{
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
		CORSOrigins:           cfg.CORSOrigins,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", "addr", cfg.ListenAddr)
		return srv.Run(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownOTel != nil {
			_ = shutdownOTel(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal("Server exited with error", "error", err)
	}
}
