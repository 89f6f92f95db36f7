package executor

import (
	"fmt"
	"sort"

	"github.com/phrazzld/enrich-core/internal/deadlock"
	"github.com/phrazzld/enrich-core/internal/isolation"
	"github.com/phrazzld/enrich-core/internal/pool"
	"github.com/phrazzld/enrich-core/internal/task"
)

// Overall health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// degradedErrorRate is the failed/executed ratio at which the executor
// reports itself degraded.
const degradedErrorRate = 0.10

// Snapshot is a point-in-time view of executor concurrency state.
type Snapshot struct {
	Pools            map[task.ResourceType]pool.Metrics `json:"pools"`
	ActiveTasks      int                                `json:"active_tasks"`
	ActiveByPriority map[string]int                     `json:"active_by_priority"`
	QueueLength      int                                `json:"queue_length"`
	QueueCapacity    int                                `json:"queue_capacity"`
	Backpressure     bool                               `json:"backpressure"`
	Deadlock         deadlock.Stats                     `json:"deadlock"`
	Isolation        isolation.Stats                    `json:"isolation"`
	TasksExecuted    uint64                             `json:"tasks_executed"`
	TasksFailed      uint64                             `json:"tasks_failed"`
	ErrorRate        float64                            `json:"error_rate"`
}

// Health is the executor's aggregate condition plus advisory, non-binding
// recommendations derived from the same signals.
type Health struct {
	Status          string                            `json:"status"`
	Pools           map[task.ResourceType]pool.Health `json:"pools"`
	Recommendations []string                          `json:"recommendations,omitempty"`
}

// Metrics aggregates per-pool usage, active-task counts by priority, queue
// pressure, deadlock-detector counters, and the error rate.
func (e *Executor) Metrics() Snapshot {
	poolMetrics := make(map[task.ResourceType]pool.Metrics, len(e.pools))
	for rt, p := range e.pools {
		poolMetrics[rt] = p.Metrics()
	}

	byPriority := make(map[string]int)
	e.activeMu.Lock()
	activeCount := len(e.active)
	for _, t := range e.active {
		byPriority[t.Priority().String()]++
	}
	e.activeMu.Unlock()

	queueLen := e.queueLen()
	executed := e.executed.Load()
	failed := e.failed.Load()
	var errorRate float64
	if executed > 0 {
		errorRate = float64(failed) / float64(executed)
	}

	return Snapshot{
		Pools:            poolMetrics,
		ActiveTasks:      activeCount,
		ActiveByPriority: byPriority,
		QueueLength:      queueLen,
		QueueCapacity:    e.cfg.BackpressureThreshold,
		Backpressure:     queueLen >= e.cfg.BackpressureThreshold,
		Deadlock:         e.detector.Stats(),
		Isolation:        e.isolation.Stats(),
		TasksExecuted:    executed,
		TasksFailed:      failed,
		ErrorRate:        errorRate,
	}
}

// HealthCheck reports degraded when any pool is degraded, the queue sits at
// capacity, or the error rate crosses its threshold, and produces advisory
// recommendations for each signal. The check never blocks task execution.
func (e *Executor) HealthCheck() Health {
	poolHealth := make(map[task.ResourceType]pool.Health, len(e.pools))

	// Deterministic recommendation order
	types := make([]task.ResourceType, 0, len(e.pools))
	for rt := range e.pools {
		types = append(types, rt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	status := StatusHealthy
	var recommendations []string

	for _, rt := range types {
		h := e.pools[rt].HealthCheck()
		poolHealth[rt] = h
		if h.Status != pool.StatusDegraded {
			continue
		}
		status = StatusDegraded
		if h.Utilization >= 0.90 {
			recommendations = append(recommendations,
				fmt.Sprintf("increase the %q pool size (utilization %.0f%%)", rt, h.Utilization*100))
		}
		if h.TimeoutRate >= 0.05 {
			recommendations = append(recommendations,
				fmt.Sprintf("raise the %q pool acquire timeout or size (timeout rate %.0f%%)", rt, h.TimeoutRate*100))
		}
	}

	queueLen := e.queueLen()
	if queueLen >= e.cfg.BackpressureThreshold {
		status = StatusDegraded
		recommendations = append(recommendations,
			fmt.Sprintf("task queue at capacity (%d); raise the backpressure threshold or add processing capacity", queueLen))
	}

	executed := e.executed.Load()
	if executed > 0 {
		errorRate := float64(e.failed.Load()) / float64(executed)
		if errorRate >= degradedErrorRate {
			status = StatusDegraded
			recommendations = append(recommendations,
				fmt.Sprintf("error rate %.0f%%; inspect failing task handlers", errorRate*100))
		}
	}

	return Health{
		Status:          status,
		Pools:           poolHealth,
		Recommendations: recommendations,
	}
}
