package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

// Service owns the process-wide database handle. The default driver is
// embedded SQLite with immediate write transactions; postgres can be
// selected for shared deployments.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

type Config struct {
	Driver string // "sqlite" (default) or "postgres"
	Path   string // sqlite file path
	DSN    string // postgres DSN
}

func NewService(cfg Config, log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DatabaseService")
	var (
		handle *gorm.DB
		err    error
	)
	gormCfg := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	}
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "torc.db"
		}
		serviceLog.Info("Opening SQLite database", "path", path)
		handle, err = gorm.Open(sqlite.Open(sqliteDSN(path)), gormCfg)
	case "postgres":
		serviceLog.Info("Connecting to Postgres")
		handle, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		serviceLog.Error("Failed to open database", "error", err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	svc := &Service{db: handle, log: serviceLog}
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		// WAL lets readers proceed while a writer holds the lock; the
		// busy timeout absorbs writer contention so claim paths never
		// surface lock errors to callers.
		if err := handle.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	return svc, nil
}

// sqliteDSN sets _txlock=immediate so every write transaction takes the
// writer lock up front (BEGIN IMMEDIATE semantics).
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_foreign_keys=on", path)
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables")
	err := s.db.AutoMigrate(
		&types.Workflow{},
		&types.Job{},
		&types.JobInternal{},
		&types.JobDependency{},
		&types.JobInputFile{},
		&types.JobOutputFile{},
		&types.JobInputUserData{},
		&types.JobOutputUserData{},
		&types.File{},
		&types.UserData{},
		&types.ResourceRequirements{},
		&types.ComputeNode{},
		&types.LocalScheduler{},
		&types.SlurmScheduler{},
		&types.ScheduledComputeNode{},
		&types.Result{},
		&types.WorkflowResult{},
		&types.Event{},
		&types.WorkflowAction{},
		&types.RemoteWorker{},
		&types.FailureHandler{},
		&types.AccessGroup{},
		&types.UserGroupMembership{},
		&types.WorkflowAccessGroup{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}
