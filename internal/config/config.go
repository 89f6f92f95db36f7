package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
// The struct is built once by Load and treated as immutable afterwards;
// "hot reload" means building a new Config and re-constructing the
// components that consume it.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Executor  ExecutorConfig  `mapstructure:"executor"  validate:"required"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"   validate:"required"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" validate:"required"`
}

// ServerConfig contains the operational HTTP endpoint settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// ExecutorConfig bounds the concurrent task executor: per-resource pool
// sizes, timeouts, and the queue backpressure threshold.
type ExecutorConfig struct {
	// Per-resource maximum concurrency. Each maps to exactly one pool.
	APICalls            int `mapstructure:"api_calls"             validate:"required,gt=0"`
	ProcessingSlots     int `mapstructure:"processing_slots"      validate:"required,gt=0"`
	DBConnections       int `mapstructure:"db_connections"        validate:"required,gt=0"`
	VectorDBConnections int `mapstructure:"vector_db_connections" validate:"required,gt=0"`
	LLMConnections      int `mapstructure:"llm_connections"       validate:"required,gt=0"`

	// AcquireTimeoutSeconds bounds how long a task waits for one pool slot.
	AcquireTimeoutSeconds int `mapstructure:"acquire_timeout_seconds" validate:"required,gt=0"`

	// TaskTimeoutSeconds is the hard deadline for a single handler run.
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds" validate:"required,gt=0"`

	// BackpressureThreshold is the queued-task count at which new
	// priority submissions are rejected instead of buffered.
	BackpressureThreshold int `mapstructure:"backpressure_threshold" validate:"required,gt=0"`

	// Workers caps how many queued tasks the consumer dispatches
	// concurrently.
	Workers int `mapstructure:"workers" validate:"required,gt=0"`

	// ShutdownTimeoutSeconds bounds how long graceful shutdown waits for
	// active tasks before forcibly cancelling them.
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"required,gt=0"`

	// PollIntervalSeconds is how often the queue consumer and the
	// shutdown wait loop re-check their exit conditions.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"required,gt=0"`
}

// SandboxConfig contains the privilege-isolation settings applied around
// individual task executions.
type SandboxConfig struct {
	// BaseDir is where per-task working directories are created.
	// Empty means the OS temp directory.
	BaseDir string `mapstructure:"base_dir"`

	// WallClockTimeoutSeconds is the hard wall-clock deadline enforced
	// independently of the executor's cooperative timeout.
	WallClockTimeoutSeconds int `mapstructure:"wall_clock_timeout_seconds" validate:"required,gt=0"`

	// AllowedPaths are absolute paths a sandboxed task may touch in
	// addition to its own working directory.
	AllowedPaths []string `mapstructure:"allowed_paths"`

	// EnforceLimits controls whether process resource ceilings are
	// applied around sandboxed tasks.
	EnforceLimits bool `mapstructure:"enforce_limits"`
}

// LifecycleConfig controls component startup, health checking, and shutdown.
type LifecycleConfig struct {
	HealthIntervalSeconds  int `mapstructure:"health_interval_seconds"  validate:"required,gt=0"`
	MaxRestarts            int `mapstructure:"max_restarts"             validate:"gte=0"`
	StopTimeoutSeconds     int `mapstructure:"stop_timeout_seconds"     validate:"required,gt=0"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"required,gt=0"`
}
