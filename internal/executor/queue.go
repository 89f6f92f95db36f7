package executor

import (
	"container/heap"

	"github.com/phrazzld/enrich-core/internal/task"
)

// queuedTask is one pending priority submission.
type queuedTask struct {
	task      *task.Task
	handler   task.Handler
	resources []task.ResourceType

	// seq breaks priority ties: within one tier, lower sequence numbers
	// were submitted earlier and drain first.
	seq uint64
}

// taskHeap orders queued tasks by (priority, seq) ascending.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority() != h[j].task.Priority() {
		return h[i].task.Priority() < h[j].task.Priority()
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*queuedTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// push adds a submission to the queue. Caller holds queueMu.
func (e *Executor) push(qt *queuedTask) {
	e.seq++
	qt.seq = e.seq
	heap.Push(&e.queue, qt)
}

// pop removes the highest-priority submission, or reports an empty queue.
func (e *Executor) pop() (*queuedTask, bool) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	return heap.Pop(&e.queue).(*queuedTask), true
}

// queueLen returns the current queue size.
func (e *Executor) queueLen() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.queue)
}
