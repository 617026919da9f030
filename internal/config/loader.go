package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/abourramouss/serverlessextract-sub000/internal/validator"
)

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith loads configuration through a caller-provided viper instance,
// so command-line flags bound to it take precedence.
func LoadWith(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/serverlessextract")

	// Ignore error if config file not found
	_ = v.ReadInConfig()

	var cfg Config

	// Logging
	cfg.Log.Level = v.GetString("log_level")
	cfg.Log.Format = v.GetString("log_format")

	// MinIO
	cfg.MinIO.Endpoint = v.GetString("minio_endpoint")
	cfg.MinIO.AccessKey = v.GetString("minio_access_key")
	cfg.MinIO.SecretKey = v.GetString("minio_secret_key")
	cfg.MinIO.UseSSL = v.GetBool("minio_use_ssl")
	cfg.MinIO.Bucket = v.GetString("minio_bucket")

	// Redis
	cfg.Redis.Host = v.GetString("redis_host")
	cfg.Redis.Port = v.GetInt("redis_port")
	cfg.Redis.Password = v.GetString("redis_password")
	cfg.Redis.DB = v.GetInt("redis_db")

	// Executor
	cfg.Executor.Backend = v.GetString("executor_backend")
	cfg.Executor.Queue = v.GetString("executor_queue")
	cfg.Executor.Concurrency = v.GetInt("executor_concurrency")
	cfg.Executor.SubmitRate = v.GetFloat64("executor_submit_rate")
	cfg.Executor.SubmitBurst = v.GetInt("executor_submit_burst")
	cfg.Executor.PollInterval = v.GetDuration("executor_poll_interval")
	cfg.Executor.TaskTimeout = v.GetDuration("executor_task_timeout")
	cfg.Executor.ResultRetention = v.GetDuration("executor_result_retention")
	cfg.Executor.BreakerFailures = v.GetInt("executor_breaker_failures")
	cfg.Executor.BreakerCooldown = v.GetDuration("executor_breaker_cooldown")

	// Worker
	cfg.Worker.MemoryMB = v.GetInt("worker_memory_mb")
	cfg.Worker.CPUs = v.GetFloat64("worker_cpus")
	cfg.Worker.CostPerMsPerMB = v.GetFloat64("worker_cost_per_ms_per_mb")
	cfg.Worker.WorkDir = v.GetString("worker_work_dir")
	cfg.Worker.FailurePolicy = v.GetString("worker_failure_policy")
	cfg.Worker.TransferConcurrency = v.GetInt("worker_transfer_concurrency")
	cfg.Worker.Concurrency = v.GetInt("worker_concurrency")

	// Partitioning
	cfg.Partition.Concurrency = v.GetInt("partition_concurrency")

	// Profiler
	cfg.Profiler.Enabled = v.GetBool("profiler_enabled")
	cfg.Profiler.Interval = v.GetDuration("profiler_interval")
	cfg.Profiler.HandBackTimeout = v.GetDuration("profiler_hand_back_timeout")

	// Collection
	cfg.Collection.Backend = v.GetString("collection_backend")
	cfg.Collection.Path = v.GetString("collection_path")
	cfg.Collection.Key = v.GetString("collection_key")

	// Metrics
	cfg.Metrics.Enabled = v.GetBool("metrics_enabled")
	cfg.Metrics.Addr = v.GetString("metrics_addr")

	// Run
	cfg.Run.KeyPrefix = v.GetString("run_key_prefix")
	cfg.Run.Limit = v.GetInt("run_limit")

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// MinIO defaults
	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_access_key", "minioadmin")
	v.SetDefault("minio_secret_key", "minioadmin")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("minio_bucket", "serverlessextract")

	// Redis defaults
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// Executor defaults
	v.SetDefault("executor_backend", "local")
	v.SetDefault("executor_queue", "extract")
	v.SetDefault("executor_concurrency", 16)
	v.SetDefault("executor_submit_rate", 50.0)
	v.SetDefault("executor_submit_burst", 10)
	v.SetDefault("executor_poll_interval", "2s")
	v.SetDefault("executor_task_timeout", "2h")
	v.SetDefault("executor_result_retention", "24h")
	v.SetDefault("executor_breaker_failures", 5)
	v.SetDefault("executor_breaker_cooldown", "30s")

	// Worker defaults
	v.SetDefault("worker_memory_mb", 2048)
	v.SetDefault("worker_cpus", 1.0)
	v.SetDefault("worker_cost_per_ms_per_mb", 0.0000000167)
	v.SetDefault("worker_work_dir", "/tmp/serverlessextract")
	v.SetDefault("worker_failure_policy", "tolerate")
	v.SetDefault("worker_transfer_concurrency", 8)
	v.SetDefault("worker_concurrency", 4)

	// Partitioning defaults
	v.SetDefault("partition_concurrency", 8)

	// Profiler defaults
	v.SetDefault("profiler_enabled", true)
	v.SetDefault("profiler_interval", "1s")
	v.SetDefault("profiler_hand_back_timeout", "10s")

	// Collection defaults
	v.SetDefault("collection_backend", "file")
	v.SetDefault("collection_path", "job_collection.json")
	v.SetDefault("collection_key", "serverlessextract:job_collection")

	// Metrics defaults
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("metrics_addr", ":9090")

	// Run defaults
	v.SetDefault("run_key_prefix", "")
	v.SetDefault("run_limit", 0)
}

func validate(cfg *Config) error {
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Collection.Backend == "file" && cfg.Collection.Path == "" {
		return fmt.Errorf("invalid configuration: collection_path is required for the file backend")
	}
	if cfg.Collection.Backend != "file" && cfg.Collection.Key == "" {
		return fmt.Errorf("invalid configuration: collection_key is required for the %s backend", cfg.Collection.Backend)
	}
	return nil
}
