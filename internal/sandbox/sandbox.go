package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/enrich-core/internal/config"
	"github.com/phrazzld/enrich-core/internal/task"
)

// Config holds the settings for the secure executor.
type Config struct {
	// BaseDir is the directory under which per-task working directories
	// are created. Empty means the system temp directory.
	BaseDir string

	// WallClockTimeout bounds total elapsed time for a sandboxed task,
	// independent of any cooperative timeout the caller applies.
	WallClockTimeout time.Duration

	// AllowedPaths lists directories outside the working directory that a
	// task may still touch, such as a shared read-only dataset.
	AllowedPaths []string

	// EnforceLimits controls whether process resource ceilings are
	// applied. Limits affect the whole process, so tests and embedders
	// that share the process with unrelated work can switch them off.
	EnforceLimits bool
}

// DefaultConfig returns sandbox settings suitable for production use.
func DefaultConfig() Config {
	return Config{
		WallClockTimeout: 5 * time.Minute,
		EnforceLimits:    true,
	}
}

// FromAppConfig converts the application-level sandbox settings into the
// executor's own configuration.
func FromAppConfig(c config.SandboxConfig) Config {
	return Config{
		BaseDir:          c.BaseDir,
		WallClockTimeout: time.Duration(c.WallClockTimeoutSeconds) * time.Second,
		AllowedPaths:     c.AllowedPaths,
		EnforceLimits:    c.EnforceLimits,
	}
}

// Executor runs task handlers inside a restricted environment: a private
// working directory, best-effort process resource ceilings derived from the
// task's privilege level, and a wall-clock watchdog. Cleanup of the working
// directory is unconditional, whether the handler succeeds, fails, panics,
// or times out.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// NewExecutor creates a sandboxed executor. A nil logger falls back to the
// default logger.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Env describes the restricted environment a single task runs in. Handlers
// retrieve it with EnvFromContext to locate their working directory and to
// validate paths before touching the filesystem.
type Env struct {
	// Dir is the task's private working directory. It is removed when the
	// task finishes.
	Dir string

	// Level is the privilege level the task was assigned.
	Level Level

	allowed []string
}

// ValidatePath reports whether a task may access the given path. The path
// must resolve inside the working directory or under one of the allowed
// paths; everything else, including traversal out of the sandbox via "..",
// is rejected with ErrPathOutsideSandbox.
func (e *Env) ValidatePath(path string) error {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrPathOutsideSandbox, path)
	}
	if within(e.Dir, abs) {
		return nil
	}
	for _, root := range e.allowed {
		if within(root, abs) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrPathOutsideSandbox, path)
}

// within reports whether path is root itself or a descendant of root.
func within(root, path string) bool {
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

type envKey struct{}

// EnvFromContext returns the sandbox environment for the current task, if
// the task is running under a sandboxed executor.
func EnvFromContext(ctx context.Context) (*Env, bool) {
	env, ok := ctx.Value(envKey{}).(*Env)
	return env, ok
}

// Execute runs the handler for a task inside a fresh sandbox. The sandbox
// environment is attached to the handler's context. The working directory
// is always removed before Execute returns.
func (x *Executor) Execute(ctx context.Context, t *task.Task, handler task.Handler) (any, error) {
	level := LevelForTask(t.Type())

	dir, err := x.makeWorkDir(t)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			x.logger.Warn("failed to remove sandbox working directory",
				slog.String("task_id", t.ID().String()),
				slog.String("dir", dir),
				slog.String("error", rmErr.Error()))
		}
	}()

	if x.cfg.EnforceLimits {
		saved := applyLimits(LimitsForLevel(level), x.logger)
		defer restoreLimits(saved, x.logger)
	}

	allowed := make([]string, 0, len(x.cfg.AllowedPaths))
	for _, p := range x.cfg.AllowedPaths {
		if abs, absErr := filepath.Abs(p); absErr == nil {
			allowed = append(allowed, abs)
		}
	}
	env := &Env{Dir: dir, Level: level, allowed: allowed}

	wctx, cancel := context.WithCancel(context.WithValue(ctx, envKey{}, env))
	defer cancel()

	x.logger.Debug("sandbox prepared",
		slog.String("task_id", t.ID().String()),
		slog.String("level", string(level)),
		slog.String("dir", dir))

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		result, handlerErr := handler(wctx, t)
		done <- outcome{result: result, err: handlerErr}
	}()

	watchdog := time.NewTimer(x.cfg.WallClockTimeout)
	defer watchdog.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-watchdog.C:
		cancel()
		x.logger.Warn("sandbox wall-clock watchdog fired",
			slog.String("task_id", t.ID().String()),
			slog.Duration("limit", x.cfg.WallClockTimeout))
		return nil, fmt.Errorf("%w: task %s ran longer than %s",
			ErrWallClockTimeout, t.ID(), x.cfg.WallClockTimeout)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// makeWorkDir creates the task's private, owner-only working directory.
func (x *Executor) makeWorkDir(t *task.Task) (string, error) {
	base := x.cfg.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	dir, err := os.MkdirTemp(base, "enrich-"+t.ID().String()[:8]+"-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSetup, err)
	}
	// MkdirTemp already uses 0700, but the umask does not apply to Chmod,
	// so make the ownership restriction explicit.
	if err := os.Chmod(dir, 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("%w: %v", ErrSetup, err)
	}
	return dir, nil
}
