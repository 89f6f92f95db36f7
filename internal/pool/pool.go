package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Common errors returned by the pool.
var (
	// ErrAcquireTimeout is returned when a pool slot could not be obtained
	// within the configured timeout. The wrapped message names the pool and
	// the resource id so callers can tell which budget was exhausted.
	ErrAcquireTimeout = errors.New("resource acquisition timed out")
)

// Pool is a bounded counting semaphore for one named resource type.
// At most maxSize consumers hold a slot concurrently; the (maxSize+1)-th
// Acquire blocks until a slot frees or the timeout elapses.
type Pool struct {
	name    string
	maxSize int
	timeout time.Duration
	slots   chan struct{}
	logger  *slog.Logger

	mu          sync.Mutex
	active      int
	maxObserved int
	acquires    uint64
	timeouts    uint64
}

// Metrics is a point-in-time snapshot of pool usage.
type Metrics struct {
	Name        string  `json:"name"`
	MaxSize     int     `json:"max_size"`
	Active      int     `json:"active"`
	Available   int     `json:"available"`
	Utilization float64 `json:"utilization"`
	MaxObserved int     `json:"max_observed"`
	Acquires    uint64  `json:"acquires"`
	Timeouts    uint64  `json:"timeouts"`
}

// Health status values reported by HealthCheck.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Degradation thresholds.
const (
	degradedUtilization = 0.90
	degradedTimeoutRate = 0.05
)

// Health describes the pool's current condition.
type Health struct {
	Status      string  `json:"status"`
	Utilization float64 `json:"utilization"`
	TimeoutRate float64 `json:"timeout_rate"`
}

// New creates a pool gating concurrent use of one resource type.
func New(name string, maxSize int, timeout time.Duration, logger *slog.Logger) *Pool {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Pool{
		name:    name,
		maxSize: maxSize,
		timeout: timeout,
		slots:   make(chan struct{}, maxSize),
		logger:  logger.With("component", "resource_pool", "pool", name),
	}
}

// Name returns the pool's resource name.
func (p *Pool) Name() string { return p.name }

// Acquire obtains one slot, blocking up to the pool timeout. The returned
// lease must be released by the caller; Release is safe to call more than
// once and on every exit path. On timeout no slot is granted and the error
// wraps ErrAcquireTimeout, tagged with the pool name and resource id.
func (p *Pool) Acquire(ctx context.Context, id string) (*Lease, error) {
	p.mu.Lock()
	p.acquires++
	p.mu.Unlock()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		p.mu.Lock()
		p.timeouts++
		p.mu.Unlock()
		p.logger.Warn("resource acquisition timed out",
			"resource_id", id,
			"timeout", p.timeout)
		return nil, fmt.Errorf("%w: pool %q, resource %q after %s",
			ErrAcquireTimeout, p.name, id, p.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	p.active++
	if p.active > p.maxObserved {
		p.maxObserved = p.active
	}
	p.mu.Unlock()

	p.logger.Debug("resource acquired", "resource_id", id)
	return &Lease{pool: p, id: id}, nil
}

// release returns one slot to the pool.
func (p *Pool) release(id string) {
	select {
	case <-p.slots:
	default:
		// Cleanup already drained the channel during shutdown.
	}
	p.mu.Lock()
	if p.active > 0 {
		p.active--
	}
	p.mu.Unlock()
	p.logger.Debug("resource released", "resource_id", id)
}

// Metrics reports current and historical usage.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Metrics{
		Name:        p.name,
		MaxSize:     p.maxSize,
		Active:      p.active,
		Available:   p.maxSize - p.active,
		Utilization: float64(p.active) / float64(p.maxSize),
		MaxObserved: p.maxObserved,
		Acquires:    p.acquires,
		Timeouts:    p.timeouts,
	}
}

// HealthCheck reports degraded when utilization or the timeout rate crosses
// its threshold.
func (p *Pool) HealthCheck() Health {
	p.mu.Lock()
	defer p.mu.Unlock()

	utilization := float64(p.active) / float64(p.maxSize)
	var timeoutRate float64
	if p.acquires > 0 {
		timeoutRate = float64(p.timeouts) / float64(p.acquires)
	}

	status := StatusHealthy
	if utilization >= degradedUtilization || timeoutRate >= degradedTimeoutRate {
		status = StatusDegraded
	}
	return Health{
		Status:      status,
		Utilization: utilization,
		TimeoutRate: timeoutRate,
	}
}

// Cleanup resets all tracking and frees every slot. Used during shutdown;
// leases released afterwards are no-ops.
func (p *Pool) Cleanup() {
	for {
		select {
		case <-p.slots:
		default:
			p.mu.Lock()
			p.active = 0
			p.maxObserved = 0
			p.acquires = 0
			p.timeouts = 0
			p.mu.Unlock()
			p.logger.Debug("pool cleaned up")
			return
		}
	}
}

// Lease is a held pool slot scoped to one acquisition.
type Lease struct {
	pool *Pool
	id   string
	once sync.Once
}

// Release returns the slot to the pool. Safe to call multiple times; only
// the first call has an effect.
func (l *Lease) Release() {
	l.once.Do(func() { l.pool.release(l.id) })
}
