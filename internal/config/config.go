// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	Approvals ApprovalsConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig configures the optional Postgres store. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL           string
	MaxConns      int32
	MinConns      int32
	MaxConnTime   time.Duration
	MaxIdleTime   time.Duration
	HealthCheck   time.Duration
	MigrateOnBoot bool
}

// NATSConfig configures the optional notification publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// ApprovalsConfig holds engine behaviour switches.
type ApprovalsConfig struct {
	// StrictApprovers requires the acting user to match the step's role or user.
	StrictApprovers bool
	// UsersFile is an optional YAML identity directory.
	UsersFile string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env file")
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-plt-approvals"),
			Version:     getEnv("SERVICE_VERSION", "0.1.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8086),
			GRPCPort:        getEnvInt("GRPC_PORT", 9086),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  []string{getEnv("CORS_ALLOWED_ORIGIN", "*")},
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxConns:      int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:      int32(getEnvInt("DB_MIN_CONNS", 1)),
			MaxConnTime:   getEnvDuration("DB_MAX_CONN_TIME", time.Hour),
			MaxIdleTime:   getEnvDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
			HealthCheck:   getEnvDuration("DB_HEALTH_CHECK", time.Minute),
			MigrateOnBoot: getEnvBool("DB_MIGRATE_ON_START", true),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "notifications.approvals"),
		},
		Approvals: ApprovalsConfig{
			StrictApprovers: getEnvBool("STRICT_APPROVERS", true),
			UsersFile:       os.Getenv("USERS_FILE"),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.GRPCPort <= 0 {
		return nil, errors.Errorf("invalid listener ports: http=%d grpc=%d", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return nil, errors.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.Database.MinConns, cfg.Database.MaxConns)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
