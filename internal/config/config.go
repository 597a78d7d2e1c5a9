package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"     validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Task      TaskConfig      `mapstructure:"task"      validate:"required"`
	Stream    StreamConfig    `mapstructure:"stream"    validate:"required"`
	Retention RetentionConfig `mapstructure:"retention" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// RedisConfig contains connection settings for the Redis instance that
// backs the work queue and the task record store. An empty Addr runs
// the server on the in-memory queue and record store instead, for
// single-process deployments and local development.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// DatabaseConfig contains settings for the archive database. The URL is
// optional: without it the server runs with archival disabled.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}

// TaskConfig contains worker pool and queue settings.
type TaskConfig struct {
	WorkerCount              int `mapstructure:"worker_count"               validate:"required,gt=0"`
	QueueSize                int `mapstructure:"queue_size"                 validate:"required,gt=0"`
	MaxAttempts              int `mapstructure:"max_attempts"               validate:"required,gt=0"`
	RetryBaseDelaySeconds    int `mapstructure:"retry_base_delay_seconds"   validate:"required,gt=0"`
	VisibilityTimeoutSeconds int `mapstructure:"visibility_timeout_seconds" validate:"required,gt=0"`
}

// StreamConfig contains status subscription settings.
type StreamConfig struct {
	PollIntervalMillis int `mapstructure:"poll_interval_millis" validate:"required,gt=0"`
	MaxDurationSeconds int `mapstructure:"max_duration_seconds" validate:"required,gt=0"`
}

// RetentionConfig bounds how long finished state is kept around.
type RetentionConfig struct {
	// RecordTTLSeconds is the Redis TTL applied to terminal task records.
	RecordTTLSeconds int `mapstructure:"record_ttl_seconds" validate:"required,gt=0"`

	// ArchiveMaxAgeDays is how long archive rows are kept before the
	// scheduled purge removes them. Zero disables the purge.
	ArchiveMaxAgeDays int `mapstructure:"archive_max_age_days" validate:"gte=0"`

	// PurgeSchedule is the cron expression for the archive purge job.
	PurgeSchedule string `mapstructure:"purge_schedule"`
}
