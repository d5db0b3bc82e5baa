// Package stack is the unbounded linked-list stack adapter with
// elimination: spec.md §4.5's stack object. A single engine instance
// serves both push and pop, distinguished by a sentinel argument.
package stack

import (
	"math"

	"github.com/synchlab/pcomb/durability"
	"github.com/synchlab/pcomb/engine"
	"github.com/synchlab/pcomb/nodepool"
)

// PopOp is the sentinel argument value that selects pop instead of push
// — mirroring the reference implementation's use of INT_MIN to flag
// POP_OP within the same arg channel a pushed value travels through.
const PopOp = math.MinInt64

// EmptySentinel is returned by a pop against an empty stack.
const EmptySentinel = -1

// cacheLineSize and numBuckets simulate the reference implementation's
// per-cache-line push/pop counters. Go gives no control over where a
// heap-allocated Node physically lands, so "cache line" here is a
// logical bucket assigned at allocation time rather than a real address
// range; the elimination bookkeeping built on top of it is otherwise
// identical to the reference.
const (
	cacheLineSize = 64
	numBuckets    = 64
)

// Node is one stack cell.
type Node struct {
	value int64
	next  *Node
	owner int
	line  int
}

// StackState is the engine's state record.
type StackState struct {
	top *Node
}

// Stack wires the per-thread node pools and elimination bookkeeping
// together. One instance backs one engine (PBComb or PWFComb, caller's
// choice).
type Stack struct {
	pools              []*nodepool.Pool[Node]
	barrier            durability.Barrier
	pushCounter        [numBuckets]int
	touched            map[int]bool
	freed              []*Node
	nextBucket         int
	disableElimination bool
}

// New builds a Stack with one node pool per participating thread.
// disableElimination turns off the push/pop-cancellation fast path even
// though the bookkeeping below still runs, per Config.DisableElimination.
// A nil barrier uses durability.Dummy.
func New(nthreads int, barrier durability.Barrier, disableElimination bool) *Stack {
	if barrier == nil {
		barrier = durability.Dummy{}
	}
	pools := make([]*nodepool.Pool[Node], nthreads)
	for i := range pools {
		pools[i] = nodepool.New[Node]()
	}
	return &Stack{
		pools:              pools,
		barrier:            barrier,
		touched:            make(map[int]bool),
		disableElimination: disableElimination,
	}
}

// NewState returns the initial (empty) stack state.
func (s *Stack) NewState() StackState {
	return StackState{}
}

// Func returns the serial function to register on the engine: push for
// any arg other than PopOp, pop otherwise.
func (s *Stack) Func() engine.SerialFunc[StackState] {
	return func(state *StackState, arg int64, pid int) int64 {
		if arg == PopOp {
			return s.pop(state)
		}
		return s.push(state, arg, pid)
	}
}

func (s *Stack) push(state *StackState, arg int64, pid int) int64 {
	n := s.pools[pid].Get()
	n.value = arg
	n.next = state.top
	n.owner = pid
	n.line = s.nextBucket % numBuckets
	s.nextBucket++

	s.pushCounter[n.line]++
	s.touched[n.line] = true

	state.top = n
	return 0
}

func (s *Stack) pop(state *StackState) int64 {
	if state.top == nil {
		return EmptySentinel
	}
	n := state.top
	state.top = n.next

	s.pushCounter[n.line]--
	s.touched[n.line] = true
	s.freed = append(s.freed, n)

	return n.value
}

// FinalPersist returns the hook to install on the engine: flushes every
// cache line touched this round whose net push count is still positive.
// Each line's counter is incremented by push and decremented by pop and
// is never reconciled against what was actually flushed; a line whose
// pushed nodes have all been popped again (count zero) is skipped, the
// deliberate optimization spec.md's design notes call out. With
// elimination disabled every touched line is flushed.
func (s *Stack) FinalPersist() engine.FinalPersistFunc {
	return func() {
		for line := range s.touched {
			if s.disableElimination || s.pushCounter[line] > 0 {
				_ = s.barrier.Flush(int64(line)*cacheLineSize, cacheLineSize)
			}
			delete(s.touched, line)
		}
	}
}

// AfterPersist returns the hook to install on the engine: recycles every
// node freed by a pop this round back to its originating thread's pool,
// now that no published state can reach it.
func (s *Stack) AfterPersist() engine.AfterPersistFunc {
	return func() {
		for _, n := range s.freed {
			s.pools[n.owner].Recycle(n)
		}
		s.freed = s.freed[:0]
	}
}
