package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Task       TaskConfig       `mapstructure:"task" validate:"required"`
	Similarity SimilarityConfig `mapstructure:"similarity" validate:"required"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// RedisConfig configures the shared dispatch queue.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
	// Prefix namespaces the queue keys.
	Prefix       string        `mapstructure:"prefix" validate:"required"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}

// Store and queue backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// TaskConfig tunes the task engine.
type TaskConfig struct {
	Store              string        `mapstructure:"store" validate:"required,oneof=memory postgres"`
	Queue              string        `mapstructure:"queue" validate:"required,oneof=memory redis"`
	WorkerCount        int           `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize          int           `mapstructure:"queue_size" validate:"gt=0"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay" validate:"gt=0"`
	RetryStep          time.Duration `mapstructure:"retry_step" validate:"gte=0"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay" validate:"gtefield=RetryBaseDelay"`
	StuckAge           time.Duration `mapstructure:"stuck_age" validate:"gtfield=Timeout"`
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"gt=0"`
}

// SimilarityConfig tunes the plagiarism engine.
type SimilarityConfig struct {
	Threshold      float64 `mapstructure:"threshold" validate:"gt=0,lte=1"`
	MinBlockLength int     `mapstructure:"min_block_length" validate:"gt=0"`
	NGramMin       int     `mapstructure:"ngram_min" validate:"gt=0"`
	NGramMax       int     `mapstructure:"ngram_max" validate:"gtefield=NGramMin"`
	// MaxSequenceLength caps the runes per text fed to the sequence metric.
	MaxSequenceLength int `mapstructure:"max_sequence_length" validate:"gt=0"`
}

// NotifyConfig controls who hears about task failures.
type NotifyConfig struct {
	// FailureRecipient receives task_failed notifications. Empty disables them
	// outside of the log sink.
	FailureRecipient string `mapstructure:"failure_recipient" validate:"omitempty,uuid"`
}

// SchedulerConfig controls periodic jobs. An empty ReminderSpec disables
// assignment reminders.
type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	CleanupSpec         string `mapstructure:"cleanup_spec" validate:"required_if=Enabled true"`
	RetentionDays       int    `mapstructure:"retention_days" validate:"gt=0"`
	ReminderSpec        string `mapstructure:"reminder_spec"`
	ReminderWindowHours int    `mapstructure:"reminder_window_hours" validate:"gte=0,lte=720"`
}
