// Package queue is the unbounded linked-list queue adapter: spec.md
// §4.5's queue object. It is built from two independent engine
// instances — one combining enqueue operations, one combining dequeue
// operations — sharing one physical linked list through a guard node and
// a durably-published tail pointer.
package queue

import (
	"sync/atomic"

	"github.com/synchlab/pcomb/engine"
	"github.com/synchlab/pcomb/nodepool"
)

// EmptySentinel is returned by Dequeue when the queue is empty.
const EmptySentinel = -1

// Node is one linked-list cell. Its next pointer stays nil until its
// successor is linked and never changes after that — otherwise only the
// chain's head/tail bookkeeping moves.
type Node struct {
	value int64
	next  *Node
}

// shared is the state visible to both engine instances: the guard node
// every chain starts from, and durableTail, the last node the enqueue
// side has proven durable via its after_persist hook. The dequeue side
// must never advance past durableTail — a node merely linked by
// SerialEnqueue, but not yet flushed, is not safe to hand to a caller.
type shared struct {
	guard       *Node
	durableTail atomic.Pointer[Node]
	pendingTail *Node // touched only inside the enqueue engine's critical section
}

// EnqueueState is the enqueue engine's state record: just its own
// working tail pointer, advanced by one node per served enqueue.
type EnqueueState struct {
	tail *Node
}

// DequeueState is the dequeue engine's state record: its own working
// head pointer (a guard node whose next is the oldest undequeued item).
type DequeueState struct {
	head *Node
}

// Queue wires the shared chain, the per-thread node pools, and the two
// serial functions together. The caller is responsible for constructing
// the two engines (PBComb or PWFComb, independently chosen) over
// NewEnqueueState()/NewDequeueState() and installing EnqueueFunc/
// DequeueFunc plus AfterPersist on the enqueue engine. The queue has no
// final-persist hook.
type Queue struct {
	shared *shared
	pools  []*nodepool.Pool[Node]
}

// New builds a Queue with one node pool per participating thread.
func New(nthreads int) *Queue {
	guard := &Node{}
	s := &shared{guard: guard}
	s.durableTail.Store(guard)

	pools := make([]*nodepool.Pool[Node], nthreads)
	for i := range pools {
		pools[i] = nodepool.New[Node]()
	}
	return &Queue{shared: s, pools: pools}
}

// NewEnqueueState returns the initial state for the enqueue engine.
func (q *Queue) NewEnqueueState() EnqueueState {
	return EnqueueState{tail: q.shared.guard}
}

// NewDequeueState returns the initial state for the dequeue engine.
func (q *Queue) NewDequeueState() DequeueState {
	return DequeueState{head: q.shared.guard}
}

// EnqueueFunc returns the serial function to register on the enqueue
// engine: it allocates a node from the calling thread's pool, links it
// at the current tail, and records it as this round's pending tail for
// AfterPersist to publish.
func (q *Queue) EnqueueFunc() engine.SerialFunc[EnqueueState] {
	return func(state *EnqueueState, arg int64, pid int) int64 {
		n := q.pools[pid].Get()
		n.value = arg
		n.next = nil
		state.tail.next = n
		state.tail = n
		q.shared.pendingTail = n
		return 0
	}
}

// DequeueFunc returns the serial function to register on the dequeue
// engine: FIFO pop bounded by the last durably-published tail.
func (q *Queue) DequeueFunc() engine.SerialFunc[DequeueState] {
	return func(state *DequeueState, arg int64, pid int) int64 {
		durable := q.shared.durableTail.Load()
		if state.head == durable {
			return EmptySentinel
		}
		next := state.head.next
		if next == nil {
			return EmptySentinel
		}
		state.head = next
		return next.value
	}
}

// AfterPersist returns the hook to install on the enqueue engine: it
// publishes this round's tail only once the enqueue engine's record and
// versioned pointer are both durable, giving the dequeue side a
// durability-respecting view of how far the chain may be traversed.
func (q *Queue) AfterPersist() engine.AfterPersistFunc {
	return func() {
		if q.shared.pendingTail != nil {
			q.shared.durableTail.Store(q.shared.pendingTail)
			q.shared.pendingTail = nil
		}
	}
}
