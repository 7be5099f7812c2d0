/*
Package config loads server settings from the environment.

A .env file in the working directory is read first if present; real
environment variables win over it. Unparseable numbers, booleans and
durations fall back to their defaults.

KEYS:
  APP_ADDR                listen address (":8080")
  DB_DRIVER               memory | sqlite | postgres ("sqlite")
  SQLITE_PATH             database file ("payroll.db")
  DATABASE_URL            postgres connection string
  WORKER_POOL_SIZE        concurrent employee pipelines per run (8)
  ASSUME_FULL_ATTENDANCE  treat missing attendance as full attendance
  LOG_LEVEL               debug | info | warn | error ("info")
  LOG_FORMAT              json | text ("json")
  SEED_FILE               company document applied at startup
  RECOMPUTE_INTERVAL      pending-run recompute period, 0 disables
  CORS_ORIGINS            comma separated allowed origins ("*")
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Addr                 string
	Driver               string
	SQLitePath           string
	DatabaseURL          string
	WorkerPoolSize       int
	AssumeFullAttendance bool
	LogLevel             string
	LogFormat            string
	SeedFile             string
	RecomputeInterval    time.Duration
	CORSOrigins          []string
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// FromEnv reads the environment without loading .env or validating.
func FromEnv() Config {
	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		Driver:               strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		SQLitePath:           getEnv("SQLITE_PATH", "payroll.db"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		WorkerPoolSize:       getEnvInt("WORKER_POOL_SIZE", 8),
		AssumeFullAttendance: getEnvBool("ASSUME_FULL_ATTENDANCE", false),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getEnv("LOG_FORMAT", "json")),
		SeedFile:             getEnv("SEED_FILE", ""),
		RecomputeInterval:    getEnvDuration("RECOMPUTE_INTERVAL", 0),
		CORSOrigins:          getEnvSlice("CORS_ORIGINS", []string{"*"}),
	}
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be memory, sqlite or postgres, got %q", c.Driver)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	if c.RecomputeInterval < 0 {
		return fmt.Errorf("RECOMPUTE_INTERVAL must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
