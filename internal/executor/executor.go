package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/enrich-core/internal/config"
	"github.com/phrazzld/enrich-core/internal/deadlock"
	"github.com/phrazzld/enrich-core/internal/isolation"
	"github.com/phrazzld/enrich-core/internal/pool"
	"github.com/phrazzld/enrich-core/internal/redact"
	"github.com/phrazzld/enrich-core/internal/task"
)

// Config holds the executor's resource budgets and timeouts. It is immutable
// after construction; applying new settings means building a new executor.
type Config struct {
	// ResourceLimits caps concurrent use per resource type. Each entry
	// becomes one pool owned by the executor.
	ResourceLimits map[task.ResourceType]int

	// AcquireTimeout bounds each individual pool acquisition.
	AcquireTimeout time.Duration

	// TaskTimeout is the hard deadline for one handler run.
	TaskTimeout time.Duration

	// BackpressureThreshold is the queue size at which priority
	// submissions are rejected.
	BackpressureThreshold int

	// Workers caps how many queued tasks the consumer dispatches
	// concurrently. Per-resource limits are still enforced by the pools.
	Workers int

	// ShutdownTimeout bounds how long graceful shutdown waits for active
	// tasks before forcibly cancelling them.
	ShutdownTimeout time.Duration

	// PollInterval is how often the consumer loop and the shutdown wait
	// re-check their exit conditions.
	PollInterval time.Duration
}

// DefaultConfig returns an executor configuration with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		ResourceLimits: map[task.ResourceType]int{
			task.ResourceAPICalls:            10,
			task.ResourceProcessingSlots:     4,
			task.ResourceDBConnections:       8,
			task.ResourceVectorDBConnections: 4,
			task.ResourceLLMConnections:      2,
		},
		AcquireTimeout:        30 * time.Second,
		TaskTimeout:           2 * time.Minute,
		BackpressureThreshold: 100,
		Workers:               4,
		ShutdownTimeout:       30 * time.Second,
		PollInterval:          time.Second,
	}
}

// FromAppConfig converts the application-level executor settings.
func FromAppConfig(c config.ExecutorConfig) Config {
	return Config{
		ResourceLimits: map[task.ResourceType]int{
			task.ResourceAPICalls:            c.APICalls,
			task.ResourceProcessingSlots:     c.ProcessingSlots,
			task.ResourceDBConnections:       c.DBConnections,
			task.ResourceVectorDBConnections: c.VectorDBConnections,
			task.ResourceLLMConnections:      c.LLMConnections,
		},
		AcquireTimeout:        time.Duration(c.AcquireTimeoutSeconds) * time.Second,
		TaskTimeout:           time.Duration(c.TaskTimeoutSeconds) * time.Second,
		BackpressureThreshold: c.BackpressureThreshold,
		Workers:               c.Workers,
		ShutdownTimeout:       time.Duration(c.ShutdownTimeoutSeconds) * time.Second,
		PollInterval:          time.Duration(c.PollIntervalSeconds) * time.Second,
	}
}

// Executor runs heterogeneous background tasks under finite resource
// budgets. It composes the resource pools, the deadlock detector, and the
// isolation manager, drives the task state machine, and owns the priority
// queue with its backpressure threshold.
type Executor struct {
	cfg       Config
	pools     map[task.ResourceType]*pool.Pool
	detector  *deadlock.Detector
	isolation *isolation.Manager
	store     task.Store
	logger    *slog.Logger

	queueMu sync.Mutex
	queue   taskHeap
	seq     uint64

	activeMu sync.Mutex
	active   map[uuid.UUID]*task.Task

	shuttingDown atomic.Bool
	stopCh       chan struct{}
	stopOnce     sync.Once
	notifyCh     chan struct{}
	workerSem    chan struct{}
	consumerWG   sync.WaitGroup
	inflightWG   sync.WaitGroup

	executed atomic.Uint64
	failed   atomic.Uint64
}

// ShutdownReport summarizes a graceful shutdown attempt.
type ShutdownReport struct {
	Elapsed         time.Duration `json:"elapsed"`
	Graceful        bool          `json:"graceful"`
	TerminatedTasks int           `json:"terminated_tasks"`
	Metrics         Snapshot      `json:"metrics"`
}

// New creates an executor with one pool per configured resource limit.
// store may be nil; when provided, task status transitions are persisted.
func New(cfg Config, store task.Store, logger *slog.Logger) *Executor {
	if cfg.BackpressureThreshold <= 0 {
		cfg.BackpressureThreshold = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	pools := make(map[task.ResourceType]*pool.Pool, len(cfg.ResourceLimits))
	for rt, limit := range cfg.ResourceLimits {
		pools[rt] = pool.New(string(rt), limit, cfg.AcquireTimeout, logger)
	}

	return &Executor{
		cfg:       cfg,
		pools:     pools,
		detector:  deadlock.NewDetector(logger),
		isolation: isolation.NewManager(logger),
		store:     store,
		logger:    logger.With("component", "task_executor"),
		active:    make(map[uuid.UUID]*task.Task),
		stopCh:    make(chan struct{}),
		notifyCh:  make(chan struct{}, 1),
		workerSem: make(chan struct{}, cfg.Workers),
	}
}

// ExecuteTask runs one task under the full discipline: deadlock admission,
// isolated context, canonical-order resource acquisition, hard deadline, and
// unconditional cleanup on every exit path.
func (e *Executor) ExecuteTask(
	ctx context.Context,
	t *task.Task,
	handler task.Handler,
	resources []task.ResourceType,
) (any, error) {
	if e.shuttingDown.Load() {
		return nil, fmt.Errorf("%w: rejecting task %s", ErrShuttingDown, t.ID())
	}

	taskID := t.ID().String()
	ordered := task.CanonicalOrder(resources)

	e.executed.Add(1)

	// Admission: refuse up front rather than wait into a potential cycle.
	if err := e.detector.Check(taskID, ordered); err != nil {
		e.failed.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrTaskExecution, err)
	}

	e.inflightWG.Add(1)
	defer e.inflightWG.Done()

	if err := t.MarkProcessing(); err != nil {
		e.detector.RemoveTask(taskID)
		e.failed.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrTaskExecution, err)
	}

	e.addActive(t)
	e.persistStatus(ctx, t, task.StatusProcessing, "")

	// Unconditional cleanup: whatever happens to the handler, the task
	// leaves the active table and the wait graph. This is the correctness
	// core of the executor.
	defer func() {
		e.removeActive(t)
		e.detector.RemoveTask(taskID)
	}()

	logger := e.logger.With("task_id", taskID, "task_type", t.Type(), "priority", t.Priority().String())
	logger.Info("processing task")

	var result any
	err := e.isolation.WithContext(taskID, isolationData(t), func(ic *isolation.TaskContext) error {
		leases, err := e.acquireAll(ctx, taskID, ordered)
		if err != nil {
			return err
		}
		defer releaseAll(leases)

		res, err := e.runWithDeadline(ctx, t, handler)
		result = res
		return err
	})

	if err != nil {
		e.failed.Add(1)
		if t.Status() == task.StatusProcessing {
			// Driver and handler errors can embed credentials or paths;
			// scrub before the message is persisted.
			if ferr := t.Fail(redact.Error(err)); ferr != nil {
				logger.Error("failed to record task failure", "error", ferr)
			}
		}
		e.persistStatus(context.WithoutCancel(ctx), t, t.Status(), t.ErrorMessage())
		logger.Error("task execution failed", "error", err)
		return nil, err
	}

	if cerr := t.Complete(); cerr != nil {
		// The task was forcibly cancelled while the handler finished;
		// the terminal status wins.
		logger.Warn("task finished after reaching a terminal status", "status", t.Status(), "error", cerr)
	} else {
		e.persistStatus(context.WithoutCancel(ctx), t, task.StatusCompleted, "")
	}
	logger.Info("task completed successfully",
		"duration", t.CompletedAt().Sub(t.StartedAt()))
	return result, nil
}

// acquireAll obtains all required pool slots sequentially in canonical
// order. On any failure everything already acquired is released in reverse
// order before the error propagates.
func (e *Executor) acquireAll(
	ctx context.Context,
	taskID string,
	ordered []task.ResourceType,
) ([]*pool.Lease, error) {
	leases := make([]*pool.Lease, 0, len(ordered))
	for _, rt := range ordered {
		p, ok := e.pools[rt]
		if !ok {
			releaseAll(leases)
			return nil, fmt.Errorf("%w: no pool configured for resource %q", ErrTaskExecution, rt)
		}
		lease, err := p.Acquire(ctx, taskID)
		if err != nil {
			releaseAll(leases)
			return nil, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

// releaseAll releases leases in reverse acquisition order.
func releaseAll(leases []*pool.Lease) {
	for i := len(leases) - 1; i >= 0; i-- {
		leases[i].Release()
	}
}

// runWithDeadline executes the handler under the configured task timeout.
// The handler runs in its own goroutine; cancellation is cooperative, so a
// handler that ignores its context is abandoned, not killed.
func (e *Executor) runWithDeadline(ctx context.Context, t *task.Task, handler task.Handler) (any, error) {
	hctx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	defer cancel()

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
		result, err := handler(hctx, t)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTaskExecution, out.err)
		}
		return out.result, nil
	case <-hctx.Done():
		if ctx.Err() != nil {
			// Caller cancellation, not our deadline.
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: task %s exceeded the %s task timeout",
			ErrTaskTimeout, t.ID(), e.cfg.TaskTimeout)
	}
}

// SubmitPriorityTask queues a task for background execution, ordered by
// (priority, submission order). Once the queue holds BackpressureThreshold
// tasks, submissions fail immediately with ErrQueueFull.
func (e *Executor) SubmitPriorityTask(
	ctx context.Context,
	t *task.Task,
	handler task.Handler,
	resources []task.ResourceType,
) error {
	if e.shuttingDown.Load() {
		return fmt.Errorf("%w: rejecting submission of task %s", ErrShuttingDown, t.ID())
	}

	// Check capacity before persisting so refused work leaves no row behind.
	if e.queueLen() >= e.cfg.BackpressureThreshold {
		return fmt.Errorf("%w: backpressure threshold %d reached", ErrQueueFull, e.cfg.BackpressureThreshold)
	}

	if e.store != nil {
		if err := e.store.SaveTask(ctx, t); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
	}

	e.queueMu.Lock()
	if len(e.queue) >= e.cfg.BackpressureThreshold {
		e.queueMu.Unlock()
		// The queue filled while the task was being persisted. The row
		// must not outlive the rejection, or recovery would resurrect a
		// task the caller was told was refused.
		if e.store != nil {
			if derr := e.store.DeleteTask(ctx, t.ID()); derr != nil {
				e.logger.Error("failed to delete task rejected by backpressure",
					"task_id", t.ID(),
					"error", derr)
			}
		}
		return fmt.Errorf("%w: backpressure threshold %d reached", ErrQueueFull, e.cfg.BackpressureThreshold)
	}
	e.push(&queuedTask{task: t, handler: handler, resources: resources})
	queueLen := len(e.queue)
	e.queueMu.Unlock()

	e.logger.Debug("task enqueued",
		"task_id", t.ID(),
		"task_type", t.Type(),
		"priority", t.Priority().String(),
		"queue_len", queueLen)

	// Wake the consumer without blocking.
	select {
	case e.notifyCh <- struct{}{}:
	default:
	}
	return nil
}

// Run starts the background consumer loop. The loop pops queued tasks in
// (priority, submission) order and dispatches each onto its own goroutine,
// bounded by the worker semaphore, tolerating individual failures. It polls
// the shutdown signal on the configured interval so shutdown is observed
// promptly.
func (e *Executor) Run() {
	e.consumerWG.Add(1)
	go e.consumeLoop()
	e.logger.Info("executor consumer started",
		"workers", e.cfg.Workers,
		"backpressure_threshold", e.cfg.BackpressureThreshold,
		"task_timeout", e.cfg.TaskTimeout)
}

func (e *Executor) consumeLoop() {
	defer e.consumerWG.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-e.notifyCh:
		case <-ticker.C:
		}
		e.drainQueue()
	}
}

// drainQueue dispatches queued tasks until the queue is empty or shutdown
// is signalled. Each popped task runs on its own goroutine behind the
// worker semaphore, so a slow task at the head of the queue never stalls
// later submissions whose resources are free. Pops stay in (priority,
// submission) order; a failing task is logged and never stops the loop.
func (e *Executor) drainQueue() {
	for {
		select {
		case <-e.stopCh:
			return
		case e.workerSem <- struct{}{}:
		}

		item, ok := e.pop()
		if !ok {
			<-e.workerSem
			return
		}

		go func(item *queuedTask) {
			defer func() { <-e.workerSem }()
			if _, err := e.ExecuteTask(context.Background(), item.task, item.handler, item.resources); err != nil {
				e.logger.Error("queued task failed",
					"task_id", item.task.ID(),
					"task_type", item.task.Type(),
					"priority", item.task.Priority().String(),
					"error", err)
			}
		}(item)
	}
}

// Recover reloads unfinished persisted tasks and re-queues them: pending
// tasks directly, processing tasks (interrupted by a crash) after resetting
// them to pending. Tasks whose type has no registered handler are marked
// failed rather than silently dropped.
func (e *Executor) Recover(
	ctx context.Context,
	registry *task.Registry,
	resourcesFor func(taskType string) []task.ResourceType,
) error {
	if e.store == nil {
		return nil
	}

	pending, err := e.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	processing, err := e.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	e.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"processing_count", len(processing))

	requeue := func(t *task.Task) {
		handler, ok := registry.Get(t.Type())
		if !ok {
			e.logger.Error("no handler registered for recovered task",
				"task_id", t.ID(),
				"task_type", t.Type())
			if err := e.store.UpdateTaskStatus(ctx, t.ID(), task.StatusFailed,
				"no handler registered for task type"); err != nil {
				e.logger.Error("failed to mark unrecoverable task failed",
					"task_id", t.ID(), "error", err)
			}
			return
		}

		e.queueMu.Lock()
		e.push(&queuedTask{task: t, handler: handler, resources: resourcesFor(t.Type())})
		e.queueMu.Unlock()
	}

	for _, t := range pending {
		requeue(t)
	}

	for _, t := range processing {
		if err := e.store.UpdateTaskStatus(ctx, t.ID(), task.StatusPending, "reset after recovery"); err != nil {
			e.logger.Error("failed to reset processing task",
				"task_id", t.ID(), "error", err)
			continue
		}
		// Status transitions are monotonic, so an interrupted task is
		// rebuilt as pending rather than moved backwards.
		requeue(task.Restore(t.ID(), t.Type(), t.Priority(), t.Payload(), task.StatusPending, t.CreatedAt()))
	}

	select {
	case e.notifyCh <- struct{}{}:
	default:
	}
	return nil
}

// GracefulShutdown stops accepting work, waits up to the configured
// shutdown timeout for active tasks to complete on their own, then forcibly
// marks any stragglers cancelled, and cleans up every pool and the deadlock
// detector. A repeated call is a no-op returning an immediate report.
func (e *Executor) GracefulShutdown(ctx context.Context) ShutdownReport {
	start := time.Now()

	alreadyStopping := e.shuttingDown.Swap(true)
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.consumerWG.Wait()

	if alreadyStopping {
		return ShutdownReport{
			Elapsed:  time.Since(start),
			Graceful: true,
			Metrics:  e.Metrics(),
		}
	}

	e.logger.Info("graceful shutdown started",
		"active_tasks", e.activeCount(),
		"timeout", e.cfg.ShutdownTimeout)

	deadline := time.Now().Add(e.cfg.ShutdownTimeout)
	for e.activeCount() > 0 && time.Now().Before(deadline) {
		wait := e.cfg.PollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			deadline = time.Now()
		}
	}

	terminated := 0
	for _, t := range e.takeActive() {
		msg := fmt.Sprintf("terminated: still active after the %s shutdown timeout", e.cfg.ShutdownTimeout)
		if err := t.Cancel(msg); err == nil {
			terminated++
			e.persistStatus(context.WithoutCancel(ctx), t, task.StatusCancelled, msg)
			e.logger.Warn("forcibly cancelled task during shutdown", "task_id", t.ID())
		}
		e.detector.RemoveTask(t.ID().String())
	}

	for _, p := range e.pools {
		p.Cleanup()
	}
	e.detector.Reset()

	report := ShutdownReport{
		Elapsed:         time.Since(start),
		Graceful:        terminated == 0,
		TerminatedTasks: terminated,
		Metrics:         e.Metrics(),
	}
	e.logger.Info("graceful shutdown finished",
		"elapsed", report.Elapsed,
		"graceful", report.Graceful,
		"terminated_tasks", report.TerminatedTasks)
	return report
}

// Pool returns the executor's pool for a resource type, if configured.
// Exposed for health surfaces and tests.
func (e *Executor) Pool(rt task.ResourceType) (*pool.Pool, bool) {
	p, ok := e.pools[rt]
	return p, ok
}

func (e *Executor) addActive(t *task.Task) {
	e.activeMu.Lock()
	e.active[t.ID()] = t
	e.activeMu.Unlock()
}

func (e *Executor) removeActive(t *task.Task) {
	e.activeMu.Lock()
	delete(e.active, t.ID())
	e.activeMu.Unlock()
}

func (e *Executor) activeCount() int {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	return len(e.active)
}

// takeActive empties the active table and returns its former contents.
func (e *Executor) takeActive() []*task.Task {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	tasks := make([]*task.Task, 0, len(e.active))
	for _, t := range e.active {
		tasks = append(tasks, t)
	}
	e.active = make(map[uuid.UUID]*task.Task)
	return tasks
}

// persistStatus writes a status transition through the store when one is
// configured. Persistence failures are logged, never allowed to change the
// outcome of the execution itself.
func (e *Executor) persistStatus(ctx context.Context, t *task.Task, status task.Status, errorMsg string) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateTaskStatus(ctx, t.ID(), status, errorMsg); err != nil {
		e.logger.Error("failed to persist task status",
			"task_id", t.ID(),
			"status", status,
			"error", err)
	}
}

// isolationData builds the private data handed to a task's isolated context.
func isolationData(t *task.Task) map[string]any {
	return map[string]any{
		"task_type": t.Type(),
		"priority":  t.Priority().String(),
		"payload":   append([]byte(nil), t.Payload()...),
	}
}
