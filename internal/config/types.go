package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all engine configuration, parsed once from the environment.
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	// InstanceID identifies this scheduler replica in lease ownership and logs.
	InstanceID string

	Scheduler SchedulerConfig
	Executor  ExecutorConfig
	Database  DatabaseConfig
	Lease     LeaseConfig
	Notify    NotifyConfig
	Server    ServerConfig
	Remote    RemoteConfig
}

// SchedulerConfig controls the top-level polling loop.
type SchedulerConfig struct {
	// TickInterval is the fixed polling interval, clamped to [1s, 1h].
	TickInterval time.Duration
	// DueWindow is the tolerance window for schedule evaluation.
	DueWindow time.Duration
	// MaxConcurrent bounds the number of in-flight checks per instance.
	MaxConcurrent int64
	// PageSize for paging through active configurations.
	PageSize int
	// ExecutionRetention is how long terminal executions are kept.
	ExecutionRetention time.Duration
}

// ExecutorConfig controls one check's retry and timeout behavior.
type ExecutorConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// HardTimeout caps a whole check; exceeding it fails the execution.
	HardTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// LeaseConfig holds distributed-lease (Redis) settings.
type LeaseConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL after which an unreleased lease expires on its own.
	TTL time.Duration
}

// NotifyConfig selects and configures the notification transport.
type NotifyConfig struct {
	// Backend is "sqs" or "rabbitmq".
	Backend     string
	Region      string
	RabbitMQURL string
}

// ServerConfig holds the health/metrics HTTP endpoint settings.
type ServerConfig struct {
	Addr string
}

// RemoteConfig holds timeouts applied to protocol adapter I/O.
type RemoteConfig struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.ServiceName == "" {
		errs = append(errs, "SERVICE_NAME is required")
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		errs = append(errs, "SCHEDULER_MAX_CONCURRENT must be positive")
	}
	if c.Scheduler.PageSize <= 0 {
		errs = append(errs, "SCHEDULER_PAGE_SIZE must be positive")
	}
	if c.Scheduler.DueWindow <= 0 {
		errs = append(errs, "SCHEDULER_DUE_WINDOW must be positive")
	}
	if c.Executor.MaxAttempts < 1 {
		errs = append(errs, "EXECUTOR_MAX_ATTEMPTS must be at least 1")
	}
	if c.Executor.InitialBackoff <= 0 {
		errs = append(errs, "EXECUTOR_INITIAL_BACKOFF must be positive")
	}
	if c.Executor.HardTimeout <= 0 {
		errs = append(errs, "EXECUTOR_HARD_TIMEOUT must be positive")
	}
	if c.Remote.ConnectTimeout <= 0 {
		errs = append(errs, "REMOTE_CONNECT_TIMEOUT must be positive")
	}
	switch strings.ToLower(c.Notify.Backend) {
	case "sqs", "rabbitmq":
	default:
		errs = append(errs, fmt.Sprintf("NOTIFY_BACKEND must be sqs or rabbitmq, got %q", c.Notify.Backend))
	}
	if c.IsProduction() {
		if c.Database.Password == "" {
			errs = append(errs, "DB_PASSWORD is required in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyDefaults clamps and fills in environment-specific values.
func (c *Config) applyDefaults() {
	// The polling interval is configurable but bounded.
	if c.Scheduler.TickInterval < time.Second {
		c.Scheduler.TickInterval = time.Second
	}
	if c.Scheduler.TickInterval > time.Hour {
		c.Scheduler.TickInterval = time.Hour
	}

	if c.Lease.TTL <= 0 {
		c.Lease.TTL = 5 * time.Minute
	}

	if c.IsProduction() {
		if c.Database.SSLMode == "" || c.Database.SSLMode == "disable" {
			c.Database.SSLMode = "require"
		}
	}
}

// Environment detection methods

func (c *Config) IsLocal() bool {
	env := strings.ToLower(c.Environment)
	return env == "local" || env == "development" || env == "dev"
}

func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

func (c *Config) IsTest() bool {
	env := strings.ToLower(c.Environment)
	return env == "test" || env == "testing"
}
