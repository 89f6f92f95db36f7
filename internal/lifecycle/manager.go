package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/phrazzld/enrich-core/internal/config"
)

// Component is a managed piece of the application: a database handle, a
// store, the task executor, an HTTP server. The manager drives each
// component through start, periodic health checks, optional restarts, and
// an orderly stop.
type Component interface {
	// Name returns the component's registered name.
	Name() string

	// Start brings the component up. It must return promptly; long-lived
	// work belongs in goroutines the component owns.
	Start(ctx context.Context) error

	// Stop shuts the component down, honoring the context deadline.
	Stop(ctx context.Context) error

	// HealthCheck reports nil when the component is able to serve.
	HealthCheck(ctx context.Context) error
}

// Factory builds a fresh instance of a component. Registration takes a
// factory rather than an instance so a failed component can be replaced by
// a brand-new one on restart instead of reusing poisoned internal state.
type Factory func() (Component, error)

// State describes where a component is in its lifecycle.
type State string

const (
	StateRegistered State = "registered"
	StateRunning    State = "running"
	StateDegraded   State = "degraded"
	StateFailed     State = "failed"
	StateStopped    State = "stopped"
)

// DependencyValidation is the result of probing one dependency edge before
// a component starts.
type DependencyValidation struct {
	Component  string
	Dependency string
	Available  bool
	Latency    time.Duration
}

// Config holds the lifecycle manager settings.
type Config struct {
	// HealthInterval is how often running components are probed.
	HealthInterval time.Duration

	// MaxRestarts bounds automatic restarts per component. Once the
	// budget is spent a failing component is marked failed permanently.
	MaxRestarts int

	// StopTimeout bounds each individual component stop.
	StopTimeout time.Duration

	// ShutdownTimeout bounds the entire shutdown sequence.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns lifecycle settings suitable for production use.
func DefaultConfig() Config {
	return Config{
		HealthInterval:  30 * time.Second,
		MaxRestarts:     1,
		StopTimeout:     10 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// FromAppConfig converts the application-level lifecycle settings into the
// manager's own configuration.
func FromAppConfig(c config.LifecycleConfig) Config {
	return Config{
		HealthInterval:  time.Duration(c.HealthIntervalSeconds) * time.Second,
		MaxRestarts:     c.MaxRestarts,
		StopTimeout:     time.Duration(c.StopTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(c.ShutdownTimeoutSeconds) * time.Second,
	}
}

type registration struct {
	name      string
	factory   Factory
	deps      []string
	index     int // registration order, tie-break for deterministic startup
	component Component
	state     State
	restarts  int
}

// Manager owns the application's components: it instantiates them from
// their factories in dependency order, validates each dependency is alive
// before its dependent starts, monitors health with a bounded restart
// budget, and stops everything in reverse order on shutdown.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	regs  map[string]*registration
	order []string // topological start order, set by InitializeComponents

	running      bool
	shutdownOnce sync.Once
	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

// NewManager creates a lifecycle manager. A nil logger falls back to the
// default logger.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		regs:   make(map[string]*registration),
	}
}

// Register adds a component under the given name with its declared
// dependencies. Dependencies are validated for existence at initialization
// time, so registration order does not matter.
func (m *Manager) Register(name string, factory Factory, deps ...string) error {
	if factory == nil {
		return fmt.Errorf("component %q: nil factory", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[name]; ok {
		return fmt.Errorf("%w: %q", ErrComponentRegistered, name)
	}
	m.regs[name] = &registration{
		name:    name,
		factory: factory,
		deps:    append([]string(nil), deps...),
		index:   len(m.regs),
		state:   StateRegistered,
	}
	return nil
}

// InitializeComponents orders the dependency graph topologically and
// instantiates every component from its factory. The returned slice is the
// start order. A cycle or a dependency on an unregistered name fails the
// whole initialization.
func (m *Manager) InitializeComponents() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.topoSortLocked()
	if err != nil {
		return nil, err
	}

	for _, name := range order {
		reg := m.regs[name]
		component, err := reg.factory()
		if err != nil {
			return nil, fmt.Errorf("instantiating component %q: %w", name, err)
		}
		reg.component = component
	}
	m.order = order
	return append([]string(nil), order...), nil
}

// topoSortLocked runs Kahn's algorithm over the dependency graph. Among
// components whose dependencies are all satisfied, registration order wins,
// so the start order is deterministic run to run.
func (m *Manager) topoSortLocked() ([]string, error) {
	indegree := make(map[string]int, len(m.regs))
	dependents := make(map[string][]string, len(m.regs))
	for name, reg := range m.regs {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range reg.deps {
			if _, ok := m.regs[dep]; !ok {
				return nil, fmt.Errorf("%w: component %q depends on %q", ErrUnknownDependency, name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(m.regs))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return m.regs[ready[i]].index < m.regs[ready[j]].index
		})
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(m.regs) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w involving %v", ErrDependencyCycle, stuck)
	}
	return order, nil
}

// StartAll starts every component in dependency order. Before each start,
// every declared dependency is probed with its health check; an unavailable
// dependency or a failed start rolls back the components already started,
// in reverse order, so a partial startup never lingers. On success the
// health monitor begins running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.order == nil {
		m.mu.Unlock()
		if _, err := m.InitializeComponents(); err != nil {
			return err
		}
		m.mu.Lock()
	}
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	var started []string
	fail := func(err error) error {
		m.stopComponents(started, true)
		return err
	}

	for _, name := range order {
		reg := m.component(name)

		for _, v := range m.validateDependencies(ctx, reg) {
			m.logger.Debug("dependency validated",
				slog.String("component", v.Component),
				slog.String("dependency", v.Dependency),
				slog.Bool("available", v.Available),
				slog.Duration("latency", v.Latency))
			if !v.Available {
				return fail(fmt.Errorf("%w: %q needs %q", ErrDependencyUnavailable, v.Component, v.Dependency))
			}
		}

		if err := reg.component.Start(ctx); err != nil {
			m.setState(name, StateFailed)
			return fail(fmt.Errorf("%w: %q: %v", ErrStartFailed, name, err))
		}
		m.setState(name, StateRunning)
		started = append([]string{name}, started...)
		m.logger.Info("component started", slog.String("component", name))
	}

	m.mu.Lock()
	m.running = true
	healthCtx, cancel := context.WithCancel(context.Background())
	m.healthCancel = cancel
	m.healthDone = make(chan struct{})
	m.mu.Unlock()

	go m.monitor(healthCtx)
	return nil
}

// validateDependencies probes each declared dependency of a registration.
func (m *Manager) validateDependencies(ctx context.Context, reg *registration) []DependencyValidation {
	results := make([]DependencyValidation, 0, len(reg.deps))
	for _, dep := range reg.deps {
		depReg := m.component(dep)
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
		err := depReg.component.HealthCheck(probeCtx)
		cancel()
		results = append(results, DependencyValidation{
			Component:  reg.name,
			Dependency: dep,
			Available:  err == nil,
			Latency:    time.Since(start),
		})
	}
	return results
}

// monitor probes running components on a fixed interval and restarts the
// ones that fail, until each component's restart budget is spent.
func (m *Manager) monitor(ctx context.Context) {
	defer close(m.healthDone)

	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Manager) probeAll(ctx context.Context) {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, name := range order {
		reg := m.component(name)
		m.mu.Lock()
		state := reg.state
		component := reg.component
		m.mu.Unlock()
		if state != StateRunning && state != StateDegraded {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
		err := component.HealthCheck(probeCtx)
		cancel()
		if err == nil {
			if state == StateDegraded {
				m.setState(name, StateRunning)
				m.logger.Info("component recovered", slog.String("component", name))
			}
			continue
		}

		m.logger.Warn("component health check failed",
			slog.String("component", name),
			slog.String("error", err.Error()))
		m.setState(name, StateDegraded)

		if restartErr := m.RestartComponent(ctx, name); restartErr != nil {
			m.logger.Error("component restart failed",
				slog.String("component", name),
				slog.String("error", restartErr.Error()))
		}
	}
}

// RestartComponent stops a component, builds a fresh instance from its
// factory, and starts it. The restart counts against the component's
// budget; once the budget is spent the component is marked failed and left
// down.
func (m *Manager) RestartComponent(ctx context.Context, name string) error {
	m.mu.Lock()
	reg, ok := m.regs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	if reg.restarts >= m.cfg.MaxRestarts {
		reg.state = StateFailed
		m.mu.Unlock()
		m.logger.Error("component restart budget exhausted",
			slog.String("component", name),
			slog.Int("restarts", reg.restarts))
		return fmt.Errorf("component %q: restart budget of %d exhausted", name, m.cfg.MaxRestarts)
	}
	reg.restarts++
	old := reg.component
	m.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
	if err := old.Stop(stopCtx); err != nil {
		m.logger.Warn("stopping failed component",
			slog.String("component", name),
			slog.String("error", err.Error()))
	}
	cancel()

	fresh, err := reg.factory()
	if err != nil {
		m.setState(name, StateFailed)
		return fmt.Errorf("rebuilding component %q: %w", name, err)
	}
	if err := fresh.Start(ctx); err != nil {
		m.setState(name, StateFailed)
		return fmt.Errorf("%w: %q: %v", ErrStartFailed, name, err)
	}

	m.mu.Lock()
	reg.component = fresh
	reg.state = StateRunning
	m.mu.Unlock()

	m.logger.Info("component restarted",
		slog.String("component", name),
		slog.Int("restart", reg.restarts))
	return nil
}

// Shutdown stops the health monitor and every component in reverse start
// order, each bounded by the per-component stop timeout and all of it by
// the overall shutdown timeout. Repeat calls are no-ops.
func (m *Manager) Shutdown() error {
	var err error
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		if m.healthCancel != nil {
			m.healthCancel()
		}
		healthDone := m.healthDone
		order := append([]string(nil), m.order...)
		m.running = false
		m.mu.Unlock()

		if healthDone != nil {
			<-healthDone
		}

		reversed := make([]string, 0, len(order))
		for i := len(order) - 1; i >= 0; i-- {
			reversed = append(reversed, order[i])
		}
		err = m.stopComponents(reversed, false)
	})
	return err
}

// stopComponents stops the named components in the order given. During
// startup rollback failures are only logged; during shutdown they are
// collected and returned.
func (m *Manager) stopComponents(names []string, rollback bool) error {
	deadline := time.Now().Add(m.cfg.ShutdownTimeout)
	var errs []error
	for _, name := range names {
		reg := m.component(name)
		if reg == nil || reg.component == nil {
			continue
		}
		m.mu.Lock()
		state := reg.state
		m.mu.Unlock()
		if state != StateRunning && state != StateDegraded {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			errs = append(errs, fmt.Errorf("%w: %q: overall shutdown deadline passed", ErrStopTimeout, name))
			m.setState(name, StateFailed)
			continue
		}
		if remaining > m.cfg.StopTimeout {
			remaining = m.cfg.StopTimeout
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), remaining)
		err := reg.component.Stop(stopCtx)
		cancel()
		if err != nil {
			m.setState(name, StateFailed)
			errs = append(errs, fmt.Errorf("stopping %q: %w", name, err))
			m.logger.Error("component stop failed",
				slog.String("component", name),
				slog.String("error", err.Error()))
			continue
		}
		m.setState(name, StateStopped)
		m.logger.Info("component stopped", slog.String("component", name))
	}
	if rollback {
		return nil
	}
	return errors.Join(errs...)
}

// States returns a snapshot of every component's current state.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make(map[string]State, len(m.regs))
	for name, reg := range m.regs {
		states[name] = reg.state
	}
	return states
}

// Healthy reports whether every component is currently running.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	for _, reg := range m.regs {
		if reg.state != StateRunning {
			return false
		}
	}
	return true
}

// component returns the registration for a name, or nil.
func (m *Manager) component(name string) *registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[name]
}

func (m *Manager) setState(name string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.regs[name]; ok {
		reg.state = s
	}
}

// WaitForSignal blocks until SIGINT or SIGTERM arrives or the context is
// cancelled, then returns so the caller can run Shutdown.
func (m *Manager) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return sig
	case <-ctx.Done():
		return nil
	}
}
