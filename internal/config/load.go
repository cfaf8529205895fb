package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars carry the config then.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PATHFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind critical environment variables. AutomaticEnv alone
	// does not surface env-only keys through Unmarshal.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"server.port", "PATHFORGE_SERVER_PORT"},
		{"server.log_level", "PATHFORGE_SERVER_LOG_LEVEL"},
		{"database.url", "PATHFORGE_DATABASE_URL"},
		{"redis.addr", "PATHFORGE_REDIS_ADDR"},
		{"redis.password", "PATHFORGE_REDIS_PASSWORD"},
		{"llm.gemini_api_key", "PATHFORGE_LLM_GEMINI_API_KEY"},
		{"llm.model_name", "PATHFORGE_LLM_MODEL_NAME"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything with a sensible built-in
// value. Database URL and API keys deliberately have none.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.status_ttl_seconds", 300)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("generation.deadline_seconds", 10)
	v.SetDefault("generation.top_n", 5)
	v.SetDefault("generation.synthesize_floor", 0.5)
	v.SetDefault("generation.k_module", 3)
	v.SetDefault("generation.k_topic", 2)

	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.backoff_seconds", 30)
	v.SetDefault("queue.stale_after_seconds", 50)
	v.SetDefault("queue.gc_retention_hours", 168)

	v.SetDefault("frontier.advance_threshold", 80)
}
