// Package engine implements the two generic combining engines — PBComb
// (lock-based) and PWFComb (wait-free) — that let an arbitrary sequential
// object be shared durably among N threads. Everything adapter-specific
// (heaps, queues, stacks) lives one layer up in the adapters package;
// this package only knows about announce/combine/persist/publish.
package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Tuning constants carried over verbatim from the reference library.
// spec.md §9 calls these out explicitly as empirical and re-tunable.
// DefaultCombiningRounds, DefaultMaxBackoff and DefaultMinBackoff are the
// defaults for Config's CombiningRounds, MaxBackoff and MinBackoff, which
// a caller can override per engine; PoolSize, LocalPoolSize and
// FADDivisions are fixed at compile time.
const (
	// DefaultCombiningRounds bounds how many passes a PBComb combiner
	// makes over the announcement array before yielding the lock even
	// if requests are still arriving.
	DefaultCombiningRounds = 20

	// PoolSize is the number of private state-record slots a PBComb
	// combiner round-robins through. Spec invariant 5 requires at
	// least 2 so a record still referenced by a recent S is never
	// reused before the owner's next turn as combiner.
	PoolSize = 2

	// LocalPoolSize is PWFComb's per-thread private slot count, for
	// the same reason as PoolSize.
	LocalPoolSize = 2

	// FADDivisions is the number of NUMA-bucket banks PWFComb splits
	// its activation bitvector into.
	FADDivisions = 2

	// DefaultMaxBackoff caps the exponential backoff PWFComb threads
	// apply between combine attempts.
	DefaultMaxBackoff = 1 * time.Millisecond

	// DefaultMinBackoff is the backoff floor threads reset to after a
	// successful publication.
	DefaultMinBackoff = 1 * time.Microsecond
)

// Config parameterizes an engine instance. It is validated at
// construction time with go-playground/validator the same way the
// teacher repo validates its own inbound configuration structs.
type Config struct {
	// NThreads is the number of participating threads (pids 0..N-1).
	// Fixed for the engine's lifetime — spec.md's Non-goals exclude
	// dynamic resizing of the thread set.
	NThreads int `validate:"required,min=1"`

	// CombiningRounds bounds PBComb's per-acquisition serve passes.
	CombiningRounds int `validate:"min=1"`

	// MaxBackoff and MinBackoff bound PWFComb's adaptive backoff.
	MaxBackoff time.Duration `validate:"min=0"`
	MinBackoff time.Duration `validate:"min=0"`

	// DisableFlush forces a durability.Dummy barrier regardless of
	// the caller-supplied barrier, for throughput studies and for
	// unit tests of combining logic that don't care about durability
	// timing. Mirrors spec.md §6's "another disables flush/drain as
	// dummy for performance studies".
	DisableFlush bool

	// DisableElimination records whether the stack adapter's elimination
	// fast path is off. The engines do not read it; the stack adapter
	// takes its own flag in stack.New, which callers set from this field.
	DisableElimination bool

	// EngineID names this instance for metrics labels, trace spans,
	// and the durability witness log. Left empty, a random one is
	// generated at construction.
	EngineID string
}

var validate = validator.New()

// normalize fills in defaults and validates the configuration,
// returning an error that aggregates every violation at once.
func (c Config) normalize() (Config, error) {
	if c.CombiningRounds == 0 {
		c.CombiningRounds = DefaultCombiningRounds
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MinBackoff == 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if err := validate.Struct(c); err != nil {
		return c, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return c, nil
}
