package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "watchcore.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "WATCHCORE_PORT")
	setString(&cfg.Server.BaseURL, "WATCHCORE_BASE_URL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "WATCHCORE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "WATCHCORE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "WATCHCORE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "WATCHCORE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "WATCHCORE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "WATCHCORE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WATCHCORE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "WATCHCORE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.RecoveryTimeout, "WATCHCORE_BREAKER_RECOVERY_TIMEOUT")
	setInt(&cfg.Breaker.SuccessThreshold, "WATCHCORE_BREAKER_SUCCESS_THRESHOLD")
	setDuration(&cfg.Breaker.CallTimeout, "WATCHCORE_BREAKER_CALL_TIMEOUT")
	setDuration(&cfg.Lock.DefaultTTL, "WATCHCORE_LOCK_TTL")
	setDuration(&cfg.Registry.StaleThreshold, "WATCHCORE_REGISTRY_STALE_THRESHOLD")
	setDuration(&cfg.Registry.RemovalGrace, "WATCHCORE_REGISTRY_REMOVAL_GRACE")
	setString(&cfg.Registry.SweepSchedule, "WATCHCORE_REGISTRY_SWEEP_SCHEDULE")
	setDuration(&cfg.Recovery.BackoffBase, "WATCHCORE_RECOVERY_BACKOFF_BASE")
	setDuration(&cfg.Recovery.BackoffMax, "WATCHCORE_RECOVERY_BACKOFF_MAX")
	setFloat64(&cfg.Recovery.BackoffJitter, "WATCHCORE_RECOVERY_BACKOFF_JITTER")
	setDuration(&cfg.Recovery.StalenessWindow, "WATCHCORE_RECOVERY_STALENESS_WINDOW")
	setDuration(&cfg.Recovery.SweepLockTTL, "WATCHCORE_RECOVERY_SWEEP_LOCK_TTL")
	setString(&cfg.Recovery.SweepSchedule, "WATCHCORE_RECOVERY_SWEEP_SCHEDULE")
	setInt(&cfg.Recovery.DefaultMaxTries, "WATCHCORE_RECOVERY_MAX_TRIES")
	setInt(&cfg.Orchestrator.MaxParallel, "WATCHCORE_ORCH_MAX_PARALLEL")
	setDuration(&cfg.Orchestrator.TaskDeadline, "WATCHCORE_ORCH_TASK_DEADLINE")
	setDuration(&cfg.Dedup.Retention, "WATCHCORE_DEDUP_RETENTION")
	setInt64(&cfg.Cache.L1MaxSizeMB, "WATCHCORE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "WATCHCORE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L1TTL, "WATCHCORE_CACHE_L1_TTL")
}

// validate rejects configurations that cannot work.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if cfg.Breaker.MaxFailures <= 0 {
		return errors.New("breaker max_failures must be positive")
	}
	if cfg.Breaker.SuccessThreshold <= 0 {
		return errors.New("breaker success_threshold must be positive")
	}
	if cfg.Recovery.DefaultMaxTries <= 0 {
		return errors.New("recovery default_max_tries must be positive")
	}
	if cfg.Recovery.BackoffJitter < 0 || cfg.Recovery.BackoffJitter > 1 {
		return errors.New("recovery backoff_jitter must be in [0,1]")
	}
	if cfg.Orchestrator.MaxParallel <= 0 {
		return errors.New("orchestrator max_parallel must be positive")
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, env string) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
