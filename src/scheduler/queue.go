package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"stock-charter/src/models"
)

// -----------------------------------------------------------------------------
// Queue item state machine:
//
//	Pending -> InFlight -> Succeeded        (removed)
//	                    -> FailedRetryable  (re-enqueued, priority downgraded)
//	                    -> FailedTerminal   (dropped after max retries)
// -----------------------------------------------------------------------------

type ItemState int

const (
	StatePending ItemState = iota
	StateInFlight
	StateSucceeded
	StateFailedRetryable
	StateFailedTerminal
)

func (s ItemState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailedRetryable:
		return "failed_retryable"
	case StateFailedTerminal:
		return "failed_terminal"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------

// QueueItem is one pending refresh. Items live only in memory; the durable
// record of what needs updating is the tracking table.
type QueueItem struct {
	Symbol     string
	UpdateType string
	Priority   int
	Retries    int
	State      ItemState
	EnqueuedAt time.Time

	index int    // heap position, -1 when not queued
	seq   uint64 // FIFO tiebreak within a priority tier
}

func queueKey(symbol, updateType string) string {
	return symbol + "|" + updateType
}

// -----------------------------------------------------------------------------
// UpdateQueue is an in-memory priority queue de-duplicated by
// (symbol, update-type). Re-enqueueing an already-queued pair promotes its
// priority instead of adding a second entry.
// -----------------------------------------------------------------------------

type UpdateQueue struct {
	mu    sync.Mutex
	items itemHeap
	index map[string]*QueueItem
	seq   uint64
}

// -----------------------------------------------------------------------------

func NewUpdateQueue() *UpdateQueue {
	return &UpdateQueue{
		index: make(map[string]*QueueItem),
	}
}

// -----------------------------------------------------------------------------

// Push enqueues a refresh at the given priority tier. If the pair is
// already queued, the entry is kept and its priority only ever improves
// (numeric minimum). Returns the queued item.
func (q *UpdateQueue) Push(symbol, updateType string, priority int) *QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	priority = models.ClampPriority(priority)
	key := queueKey(symbol, updateType)

	if existing, ok := q.index[key]; ok {
		if priority < existing.Priority {
			existing.Priority = priority
			heap.Fix(&q.items, existing.index)
		}
		return existing
	}

	q.seq++
	item := &QueueItem{
		Symbol:     symbol,
		UpdateType: updateType,
		Priority:   priority,
		State:      StatePending,
		EnqueuedAt: time.Now(),
		seq:        q.seq,
	}
	q.index[key] = item
	heap.Push(&q.items, item)
	return item
}

// -----------------------------------------------------------------------------

// Requeue puts a previously popped item back, preserving its retry count.
// If an equivalent entry appeared in the meantime, the two merge: best
// priority, highest retry count.
func (q *UpdateQueue) Requeue(item *QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.Priority = models.ClampPriority(item.Priority)
	key := queueKey(item.Symbol, item.UpdateType)

	if existing, ok := q.index[key]; ok {
		if item.Priority < existing.Priority {
			existing.Priority = item.Priority
			heap.Fix(&q.items, existing.index)
		}
		if item.Retries > existing.Retries {
			existing.Retries = item.Retries
		}
		return
	}

	q.seq++
	item.State = StatePending
	item.seq = q.seq
	q.index[key] = item
	heap.Push(&q.items, item)
}

// -----------------------------------------------------------------------------

// Pop removes and returns the most urgent item, or nil when empty.
func (q *UpdateQueue) Pop() *QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*QueueItem)
	delete(q.index, queueKey(item.Symbol, item.UpdateType))
	return item
}

// -----------------------------------------------------------------------------

func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// -----------------------------------------------------------------------------

// Contains reports whether the (symbol, update-type) pair is queued.
func (q *UpdateQueue) Contains(symbol, updateType string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[queueKey(symbol, updateType)]
	return ok
}

// -----------------------------------------------------------------------------
// heap.Interface implementation
// -----------------------------------------------------------------------------

type itemHeap []*QueueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	item := x.(*QueueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
