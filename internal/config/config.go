// Package config loads all runtime configuration from environment variables.
// A .env file in the working directory is read first when present; variables
// already set in the process environment always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for Steward.
type Config struct {
	HTTP          HTTPConfig
	DB            DBConfig
	Log           LogConfig
	JWT           JWTConfig
	App           AppConfig
	Notifications NotificationConfig
	Worker        WorkerConfig
	OTel          OTelConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "steward.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds JSON Web Token signing and expiry settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AppConfig holds application-level settings such as seed credentials.
type AppConfig struct {
	SeedAdminEmail    string
	SeedAdminPassword string
	SeedCompanyName   string
}

// NotificationConfig holds notification retention settings.
type NotificationConfig struct {
	RetentionDays int
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency int
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)

	// DB
	db, err := loadDB()
	if err != nil {
		return nil, err
	}
	cfg.DB = *db

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	// App
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@steward.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")
	cfg.App.SeedCompanyName = envStr("SEED_COMPANY_NAME", "Default Company")

	// Notifications
	cfg.Notifications.RetentionDays = envInt("NOTIFICATION_RETENTION_DAYS", 90)
	if cfg.Notifications.RetentionDays < 1 {
		return nil, errors.New("NOTIFICATION_RETENTION_DAYS must be at least 1")
	}

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

// LoadDB reads only the database and logging settings. Maintenance commands
// use it so they run without JWT_SECRET.
func LoadDB() (*DBConfig, *LogConfig, error) {
	_ = godotenv.Load()
	db, err := loadDB()
	if err != nil {
		return nil, nil, err
	}
	return db, &LogConfig{Level: envStr("LOG_LEVEL", "info"), Format: envStr("LOG_FORMAT", "text")}, nil
}

func loadDB() (*DBConfig, error) {
	db := &DBConfig{
		Driver:   envStr("DB_DRIVER", "sqlite"),
		File:     envStr("DB_FILE", "steward.db"),
		DSN:      os.Getenv("DB_DSN"),
		MaxConns: envInt("DB_MAX_CONNS", 25),
	}
	if db.Driver == "postgres" && db.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	return db, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
