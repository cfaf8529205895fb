package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Frontier   FrontierConfig   `mapstructure:"frontier"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains status-cache settings. An empty address disables
// the cache; status reads then always hit the store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       validate:"gte=0"`

	// StatusTTLSeconds bounds staleness of cached unit status reads.
	StatusTTLSeconds int `mapstructure:"status_ttl_seconds" validate:"gte=0"`
}

// LLMConfig contains the generative personalization backend settings. An
// empty API key disables the backend; the marker personalizer then runs
// alone.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// GenerationConfig tunes the unit materializer and eligibility resolver.
// Zero values fall back to the package defaults.
type GenerationConfig struct {
	// DeadlineSeconds is the hard wall for one materialization run.
	DeadlineSeconds int `mapstructure:"deadline_seconds" validate:"gte=0"`

	// TopN caps how many content items are selected per unit.
	TopN int `mapstructure:"top_n" validate:"gte=0"`

	// SynthesizeFloor is the preference score above which a missing
	// modality gets a synthesized stand-in.
	SynthesizeFloor float64 `mapstructure:"synthesize_floor" validate:"gte=0,lte=1"`

	// KModule and KTopic bound the look-ahead batch: how many modules and
	// topics per module a single start resolves.
	KModule int `mapstructure:"k_module" validate:"gte=0"`
	KTopic  int `mapstructure:"k_topic"  validate:"gte=0"`
}

// QueueConfig tunes the task processor.
type QueueConfig struct {
	MaxRetries        int `mapstructure:"max_retries"         validate:"gte=0"`
	BatchSize         int `mapstructure:"batch_size"          validate:"gte=0"`
	BackoffSeconds    int `mapstructure:"backoff_seconds"     validate:"gte=0"`
	StaleAfterSeconds int `mapstructure:"stale_after_seconds" validate:"gte=0"`
	GCRetentionHours  int `mapstructure:"gc_retention_hours"  validate:"gte=0"`
}

// FrontierConfig tunes progress-driven advancement.
type FrontierConfig struct {
	// AdvanceThreshold is the progress percentage at which the next unit
	// is scheduled.
	AdvanceThreshold float64 `mapstructure:"advance_threshold" validate:"gte=0,lte=100"`
}
