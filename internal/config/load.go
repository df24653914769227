package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. JOBS_SERVER_PORT.
const EnvPrefix = "JOBS"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching for config.yaml in the working directory.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound explicitly.
	for _, key := range []string{"database.url", "redis.url", "notify.failure_recipient"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules that span sections.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Task.Store == BackendPostgres && cfg.Database.URL == "" {
		return errors.New("config validation failed: database.url is required when task.store is postgres")
	}
	if cfg.Task.Queue == BackendRedis && cfg.Redis.URL == "" {
		return errors.New("config validation failed: redis.url is required when task.queue is redis")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.prefix", "jobs")
	v.SetDefault("redis.poll_interval", "1s")

	v.SetDefault("task.store", BackendPostgres)
	v.SetDefault("task.queue", BackendMemory)
	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.timeout", "300s")
	v.SetDefault("task.max_retries", 3)
	v.SetDefault("task.retry_base_delay", "10s")
	v.SetDefault("task.retry_step", "10s")
	v.SetDefault("task.retry_max_delay", "60s")
	v.SetDefault("task.stuck_age", "10m")
	v.SetDefault("task.stuck_check_interval", "1m")

	v.SetDefault("similarity.threshold", 0.75)
	v.SetDefault("similarity.min_block_length", 50)
	v.SetDefault("similarity.ngram_min", 3)
	v.SetDefault("similarity.ngram_max", 5)
	v.SetDefault("similarity.max_sequence_length", 50000)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cleanup_spec", "0 4 * * 0")
	v.SetDefault("scheduler.retention_days", 30)
	v.SetDefault("scheduler.reminder_spec", "0 8 * * *")
	v.SetDefault("scheduler.reminder_window_hours", 24)
}
