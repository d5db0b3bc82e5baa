package engine

// SerialFunc is the sequential-object transition function the engine
// applies on behalf of a request: given the current state and a
// request's argument, mutate state in place and return the operation's
// result. Implementations must be deterministic and touch no state
// outside the *S they're handed — any side state (e.g. a queue's node
// pool) must be exposed through FinalPersist/AfterPersist hooks so the
// engine can fence it at the right point in the persistence protocol.
type SerialFunc[S any] func(state *S, arg int64, pid int) (ret int64)

// FinalPersistFunc runs inside the combiner's critical section, after
// the new state record has been computed but before it is flushed. It
// persists adapter-owned side state that must become durable atomically
// with the record (e.g. a queue's newly linked nodes).
type FinalPersistFunc func()

// AfterPersistFunc runs after the new record and the versioned pointer
// are both durable, letting an adapter recycle state that is now
// provably unobserved by anyone (e.g. a stack's popped nodes).
type AfterPersistFunc func()
