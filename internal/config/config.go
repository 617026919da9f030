package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Log        LogConfig
	MinIO      MinIOConfig
	Redis      RedisConfig
	Executor   ExecutorConfig
	Worker     WorkerConfig
	Partition  PartitionConfig
	Profiler   ProfilerConfig
	Collection CollectionConfig
	Metrics    MetricsConfig
	Run        RunConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// MinIOConfig holds object storage configuration
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket" validate:"required"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExecutorConfig selects and tunes the function-execution backend
type ExecutorConfig struct {
	// Backend is "local" (in-process goroutines) or "asynq" (remote workers over Redis)
	Backend         string        `mapstructure:"backend" validate:"oneof=local asynq"`
	Queue           string        `mapstructure:"queue" validate:"required"`
	Concurrency     int           `mapstructure:"concurrency" validate:"gt=0"`
	SubmitRate      float64       `mapstructure:"submit_rate" validate:"gt=0"`
	SubmitBurst     int           `mapstructure:"submit_burst" validate:"gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout" validate:"gt=0"`
	ResultRetention time.Duration `mapstructure:"result_retention" validate:"gt=0"`
	// BreakerFailures consecutive Redis errors suspend enqueueing and polling for BreakerCooldown
	BreakerFailures int           `mapstructure:"breaker_failures" validate:"gt=0"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" validate:"gt=0"`
}

// WorkerConfig holds worker resource and behaviour configuration
type WorkerConfig struct {
	MemoryMB            int     `mapstructure:"memory_mb" validate:"gte=128"`
	CPUs                float64 `mapstructure:"cpus" validate:"gt=0"`
	CostPerMsPerMB      float64 `mapstructure:"cost_per_ms_per_mb" validate:"gte=0"`
	WorkDir             string  `mapstructure:"work_dir" validate:"required"`
	FailurePolicy       string  `mapstructure:"failure_policy" validate:"failurepolicy"`
	TransferConcurrency int     `mapstructure:"transfer_concurrency" validate:"gt=0"`
	Concurrency         int     `mapstructure:"concurrency" validate:"gt=0"`
}

// PartitionConfig holds partitioning engine configuration
type PartitionConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`
}

// ProfilerConfig holds profiling subsystem configuration
type ProfilerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
	HandBackTimeout time.Duration `mapstructure:"hand_back_timeout" validate:"gt=0"`
}

// CollectionConfig selects where analysis state is persisted
type CollectionConfig struct {
	// Backend is "file", "storage" or "redis"
	Backend string `mapstructure:"backend" validate:"oneof=file storage redis"`
	Path    string `mapstructure:"path"`
	Key     string `mapstructure:"key"`
}

// MetricsConfig holds the Prometheus endpoint configuration of the worker
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// RunConfig holds per-run defaults
type RunConfig struct {
	KeyPrefix string `mapstructure:"key_prefix"`
	Limit     int    `mapstructure:"limit" validate:"gte=0"`
}

// IsRemote returns true when steps are dispatched to remote workers
func (c Config) IsRemote() bool {
	return c.Executor.Backend == "asynq"
}
