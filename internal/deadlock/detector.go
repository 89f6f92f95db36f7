package deadlock

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/enrich-core/internal/task"
)

// ErrPotentialDeadlock is returned when admitting a task's resource requests
// could complete a circular wait.
var ErrPotentialDeadlock = errors.New("potential deadlock detected")

// Detector performs a conservative wait-graph check before a task is allowed
// to start acquiring resources.
//
// The check is deliberately biased: it may reject request patterns that would
// in fact have completed (false positives), but it never admits a pattern
// that can form a circular wait, regardless of acquisition order. Rejection
// happens synchronously at admission time; the detector never lets a task
// "wait and hope". Canonical-order acquisition in the executor independently
// prevents circular wait, so the two mechanisms guarantee cycle freedom
// jointly, each covering for the other.
//
// One coarse mutex guards the shared maps. Each check walks outward from the
// requested resources through their current claimants, so the cost is
// proportional to the overlapping part of the wait graph, not to system
// size.
type Detector struct {
	mu sync.Mutex

	// waiters maps each resource to the set of task ids currently admitted
	// against it (waiting for or holding it).
	waiters map[task.ResourceType]map[string]struct{}

	// requested maps each admitted task id to its full requested resource set.
	requested map[string]map[task.ResourceType]struct{}

	checks     uint64
	rejections uint64

	logger *slog.Logger
}

// Stats reports detector activity counters and current tracking size.
type Stats struct {
	Checks       uint64 `json:"checks"`
	Rejections   uint64 `json:"rejections"`
	TrackedTasks int    `json:"tracked_tasks"`
}

// NewDetector creates an empty detector.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{
		waiters:   make(map[task.ResourceType]map[string]struct{}),
		requested: make(map[string]map[task.ResourceType]struct{}),
		logger:    logger.With("component", "deadlock_detector"),
	}
}

// Check admits taskID's resource requests or rejects them with
// ErrPotentialDeadlock. On success the task is registered in the wait graph
// and must later be removed with RemoveTask.
//
// A request is rejected when admitting it would close a ring of tasks in
// which each consecutive pair shares a resource and every member's two ring
// resources differ: in some interleaving each member then holds one resource
// and waits on the next. Tasks that share only a single resource queue on it
// and are always admitted.
func (d *Detector) Check(taskID string, resources []task.ResourceType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.checks++

	requestedSet := make(map[task.ResourceType]struct{}, len(resources))
	for _, r := range resources {
		requestedSet[r] = struct{}{}
	}

	if claimant, r, found := d.ringWith(taskID, requestedSet); found {
		d.rejections++
		d.logger.Warn("rejecting task to prevent circular wait",
			"task_id", taskID,
			"conflicting_task_id", claimant,
			"resource", r)
		return fmt.Errorf("%w: task %q conflicts with task %q over resource %q",
			ErrPotentialDeadlock, taskID, claimant, r)
	}

	// Admit: record the task in the wait graph.
	d.requested[taskID] = requestedSet
	for r := range requestedSet {
		if d.waiters[r] == nil {
			d.waiters[r] = make(map[string]struct{})
		}
		d.waiters[r][taskID] = struct{}{}
	}
	return nil
}

// ringWith searches for a path that would, together with the requester,
// form a circular-wait-capable ring: starting at a claimant of one
// requested resource, stepping between admitted tasks over shared resources
// (never re-using the resource just traversed), and arriving back at a
// different requested resource. When such a path exists it returns the
// first-hop claimant and the resource the requester contends on with it.
func (d *Detector) ringWith(taskID string, requested map[task.ResourceType]struct{}) (string, task.ResourceType, bool) {
	type hop struct {
		id  string
		via task.ResourceType
	}
	var visited map[hop]struct{}

	var walk func(id string, via, start task.ResourceType) bool
	walk = func(id string, via, start task.ResourceType) bool {
		for r := range d.requested[id] {
			if r == via {
				continue
			}
			if _, wanted := requested[r]; wanted && r != start {
				return true
			}
			for next := range d.waiters[r] {
				if next == id {
					continue
				}
				h := hop{next, r}
				if _, seen := visited[h]; seen {
					continue
				}
				visited[h] = struct{}{}
				if walk(next, r, start) {
					return true
				}
			}
		}
		return false
	}

	for r := range requested {
		// Reachability depends on the starting resource, so the pruning
		// set resets with it.
		visited = make(map[hop]struct{})
		for claimant := range d.waiters[r] {
			if claimant == taskID {
				continue
			}
			if walk(claimant, r, r) {
				return claimant, r, true
			}
		}
	}
	return "", "", false
}

// RemoveTask clears a task from the wait graph once it completes, fails, or
// is cancelled.
func (d *Detector) RemoveTask(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for r := range d.requested[taskID] {
		delete(d.waiters[r], taskID)
		if len(d.waiters[r]) == 0 {
			delete(d.waiters, r)
		}
	}
	delete(d.requested, taskID)
}

// Stats returns activity counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Checks:       d.checks,
		Rejections:   d.rejections,
		TrackedTasks: len(d.requested),
	}
}

// Reset clears all tracking. Used during executor shutdown.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiters = make(map[task.ResourceType]map[string]struct{})
	d.requested = make(map[string]map[task.ResourceType]struct{})
}
