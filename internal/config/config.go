package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/utils"
)

// Config holds the server settings. Values come from an optional YAML file
// (TORC_CONFIG) overridden by environment variables.
type Config struct {
	ListenAddr    string   `yaml:"listen_addr"`
	DBDriver      string   `yaml:"db_driver"`
	DBPath        string   `yaml:"db_path"`
	DBDSN         string   `yaml:"db_dsn"`
	LogMode       string   `yaml:"log_mode"`
	EnforceAccess bool     `yaml:"enforce_access"`
	CORSOrigins   []string `yaml:"cors_origins"`
}

func Load(log *logger.Logger) Config {
	cfg := Config{
		ListenAddr: ":8080",
		DBDriver:   "sqlite",
		DBPath:     "torc.db",
		LogMode:    "development",
	}
	if path := os.Getenv("TORC_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Failed to read config file, continuing with defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("Failed to parse config file, continuing with defaults", "path", path, "error", err)
		}
	}
	cfg.ListenAddr = utils.GetEnv("TORC_LISTEN_ADDR", cfg.ListenAddr, log)
	cfg.DBDriver = utils.GetEnv("TORC_DB_DRIVER", cfg.DBDriver, log)
	cfg.DBPath = utils.GetEnv("TORC_DB_PATH", cfg.DBPath, log)
	cfg.DBDSN = utils.GetEnv("TORC_DB_DSN", cfg.DBDSN, log)
	cfg.LogMode = utils.GetEnv("LOG_MODE", cfg.LogMode, log)
	cfg.EnforceAccess = utils.GetEnvAsBool("TORC_ENFORCE_ACCESS", cfg.EnforceAccess, log)
	return cfg
}
