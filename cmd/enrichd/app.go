package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/enrich-core/internal/config"
	"github.com/phrazzld/enrich-core/internal/events"
	"github.com/phrazzld/enrich-core/internal/executor"
	"github.com/phrazzld/enrich-core/internal/lifecycle"
	"github.com/phrazzld/enrich-core/internal/platform/logger"
	"github.com/phrazzld/enrich-core/internal/platform/postgres"
	"github.com/phrazzld/enrich-core/internal/sandbox"
	"github.com/phrazzld/enrich-core/internal/task"
)

// application holds the wired dependencies of the daemon. The database and
// executor fields are set by their lifecycle components at start time, so
// access goes through the mutex-guarded accessors.
type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *task.Registry
	emitter  *events.InMemoryEventEmitter

	mu     sync.Mutex
	db     *sql.DB
	exec   *executor.Executor
	server *http.Server
}

// initializeApp loads configuration, sets up logging, and registers the
// task handlers. Components that need external resources are built later by
// the lifecycle manager.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"backpressure_threshold", cfg.Executor.BackpressureThreshold)

	app := &application{
		cfg:      cfg,
		logger:   appLogger,
		registry: task.NewRegistry(),
		emitter:  events.NewInMemoryEventEmitter(appLogger),
	}

	sandboxed := sandbox.NewExecutor(sandbox.FromAppConfig(cfg.Sandbox), appLogger)
	if err := registerHandlers(app.registry, sandboxed); err != nil {
		return nil, fmt.Errorf("failed to register task handlers: %w", err)
	}

	// Incoming task-request events feed whichever executor is currently
	// running. Registering the bridge once here, against the application
	// itself, keeps executor restarts from stacking stale handlers on the
	// emitter.
	app.emitter.RegisterHandler(events.NewSubmissionHandler(app, app.registry, resourcesFor, appLogger))

	return app, nil
}

// SubmitPriorityTask implements events.TaskSubmitter against the executor
// that is currently running, so the submission bridge survives lifecycle
// restarts of the task-executor component.
func (app *application) SubmitPriorityTask(
	ctx context.Context,
	t *task.Task,
	handler task.Handler,
	resources []task.ResourceType,
) error {
	exec := app.executor()
	if exec == nil {
		return fmt.Errorf("task executor not running")
	}
	return exec.SubmitPriorityTask(ctx, t, handler, resources)
}

// run wires the components into the lifecycle manager, starts them, and
// blocks until a shutdown signal arrives.
func (app *application) run(ctx context.Context) error {
	manager := lifecycle.NewManager(lifecycle.FromAppConfig(app.cfg.Lifecycle), app.logger)

	registrations := []struct {
		name    string
		factory lifecycle.Factory
		deps    []string
	}{
		{"database", func() (lifecycle.Component, error) {
			return &databaseComponent{app: app}, nil
		}, nil},
		{"task-executor", func() (lifecycle.Component, error) {
			return &executorComponent{app: app}, nil
		}, []string{"database"}},
		{"http-server", func() (lifecycle.Component, error) {
			return &serverComponent{app: app, manager: manager}, nil
		}, []string{"task-executor"}},
	}
	for _, r := range registrations {
		if err := manager.Register(r.name, r.factory, r.deps...); err != nil {
			return fmt.Errorf("failed to register component %q: %w", r.name, err)
		}
	}

	order, err := manager.InitializeComponents()
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	app.logger.Info("components initialized", "start_order", order)

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start components: %w", err)
	}

	manager.WaitForSignal(ctx)
	return manager.Shutdown()
}

func (app *application) setDB(db *sql.DB) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.db = db
}

func (app *application) database() *sql.DB {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.db
}

func (app *application) setExecutor(exec *executor.Executor) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.exec = exec
}

func (app *application) executor() *executor.Executor {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.exec
}

// databaseComponent owns the connection pool and applies pending schema
// migrations on start.
type databaseComponent struct {
	app *application
}

func (c *databaseComponent) Name() string { return "database" }

func (c *databaseComponent) Start(ctx context.Context) error {
	db, err := sql.Open("pgx", c.app.cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, c.app.logger); err != nil {
		_ = db.Close()
		return err
	}

	c.app.setDB(db)
	c.app.logger.Info("database connection established")
	return nil
}

func (c *databaseComponent) Stop(context.Context) error {
	db := c.app.database()
	if db == nil {
		return nil
	}
	c.app.setDB(nil)
	return db.Close()
}

func (c *databaseComponent) HealthCheck(ctx context.Context) error {
	db := c.app.database()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

// executorComponent builds the task executor over the persisted store,
// recovers unfinished work, and starts the queue consumer.
type executorComponent struct {
	app *application
}

func (c *executorComponent) Name() string { return "task-executor" }

func (c *executorComponent) Start(ctx context.Context) error {
	db := c.app.database()
	if db == nil {
		return fmt.Errorf("database component not started")
	}

	taskStore := postgres.NewTaskStore(db)
	exec := executor.New(executor.FromAppConfig(c.app.cfg.Executor), taskStore, c.app.logger)

	if err := exec.Recover(ctx, c.app.registry, resourcesFor); err != nil {
		return fmt.Errorf("failed to recover unfinished tasks: %w", err)
	}
	exec.Run()

	c.app.setExecutor(exec)
	return nil
}

func (c *executorComponent) Stop(ctx context.Context) error {
	exec := c.app.executor()
	if exec == nil {
		return nil
	}
	c.app.setExecutor(nil)

	report := exec.GracefulShutdown(ctx)
	if !report.Graceful {
		c.app.logger.Warn("executor shutdown terminated tasks",
			"terminated_tasks", report.TerminatedTasks,
			"elapsed", report.Elapsed)
	}
	return nil
}

func (c *executorComponent) HealthCheck(context.Context) error {
	if c.app.executor() == nil {
		return fmt.Errorf("executor not running")
	}
	return nil
}

// serverComponent runs the operational HTTP endpoints.
type serverComponent struct {
	app     *application
	manager *lifecycle.Manager
}

func (c *serverComponent) Name() string { return "http-server" }

func (c *serverComponent) Start(context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.app.cfg.Server.Port),
		Handler:           newRouter(c.app, c.manager),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.app.mu.Lock()
	c.app.server = server
	c.app.mu.Unlock()

	go func() {
		c.app.logger.Info("starting HTTP server", "port", c.app.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.app.logger.Error("HTTP server failed", "error", err)
		}
	}()
	return nil
}

func (c *serverComponent) Stop(ctx context.Context) error {
	c.app.mu.Lock()
	server := c.app.server
	c.app.server = nil
	c.app.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (c *serverComponent) HealthCheck(context.Context) error {
	c.app.mu.Lock()
	defer c.app.mu.Unlock()
	if c.app.server == nil {
		return fmt.Errorf("http server not running")
	}
	return nil
}
