package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrValidation is returned (wrapped) when the loaded configuration fails
// struct validation.
var ErrValidation = errors.New("config validation failed")

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables use the ENRICH_ prefix with underscores for
	// nesting, e.g. ENRICH_SERVER_PORT, ENRICH_EXECUTOR_TASK_TIMEOUT_SECONDS.
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Optional config file in the working directory; absence is fine.
	v.SetConfigName("enrich")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every known key so viper's
// AutomaticEnv lookup and Unmarshal both see the full key set.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("executor.api_calls", 10)
	v.SetDefault("executor.processing_slots", 4)
	v.SetDefault("executor.db_connections", 8)
	v.SetDefault("executor.vector_db_connections", 4)
	v.SetDefault("executor.llm_connections", 2)
	v.SetDefault("executor.acquire_timeout_seconds", 30)
	v.SetDefault("executor.task_timeout_seconds", 120)
	v.SetDefault("executor.backpressure_threshold", 100)
	v.SetDefault("executor.workers", 4)
	v.SetDefault("executor.shutdown_timeout_seconds", 30)
	v.SetDefault("executor.poll_interval_seconds", 1)

	v.SetDefault("sandbox.base_dir", "")
	v.SetDefault("sandbox.wall_clock_timeout_seconds", 300)
	v.SetDefault("sandbox.allowed_paths", []string{})
	v.SetDefault("sandbox.enforce_limits", true)

	v.SetDefault("lifecycle.health_interval_seconds", 30)
	v.SetDefault("lifecycle.max_restarts", 1)
	v.SetDefault("lifecycle.stop_timeout_seconds", 10)
	v.SetDefault("lifecycle.shutdown_timeout_seconds", 60)
}
