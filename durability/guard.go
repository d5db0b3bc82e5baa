package durability

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrGuardOpen is returned by FlushGuard in place of calling through to
// the wrapped Barrier once the guard has tripped open.
var ErrGuardOpen = errors.New("durability: flush guard is open, backing medium assumed unavailable")

type guardState int

const (
	guardClosed guardState = iota
	guardOpen
	guardHalfOpen
)

// GuardConfig configures a FlushGuard.
type GuardConfig struct {
	// MaxFailures is how many consecutive Flush/Drain failures trip the
	// guard open.
	MaxFailures int

	// Cooldown is how long the guard stays open before allowing a single
	// probe call through (half-open).
	Cooldown time.Duration
}

// FlushGuard wraps a Barrier with a circuit breaker: once a medium starts
// failing (e.g. a region file vanished, or an msync call returns EIO), a
// combiner thread holding the combiner role should not keep blocking
// every thread behind it retrying a call that will keep failing. After
// MaxFailures consecutive failures the guard opens and Flush/Drain fail
// fast with ErrGuardOpen until Cooldown has elapsed, at which point one
// call is let through to probe recovery.
type FlushGuard struct {
	inner Barrier
	cfg   GuardConfig

	mu       sync.Mutex
	state    guardState
	failures int
	openedAt time.Time
}

// NewFlushGuard wraps inner with the given config. A zero MaxFailures or
// Cooldown falls back to 5 failures / 1 second.
func NewFlushGuard(inner Barrier, cfg GuardConfig) *FlushGuard {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Second
	}
	return &FlushGuard{inner: inner, cfg: cfg}
}

func (g *FlushGuard) Flush(off, n int64) error {
	return g.call(func() error { return g.inner.Flush(off, n) })
}

func (g *FlushGuard) Drain() error {
	return g.call(func() error { return g.inner.Drain() })
}

func (g *FlushGuard) call(op func() error) error {
	if err := g.before(); err != nil {
		return err
	}
	err := op()
	g.after(err)
	return err
}

func (g *FlushGuard) before() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case guardOpen:
		if time.Since(g.openedAt) < g.cfg.Cooldown {
			return ErrGuardOpen
		}
		g.state = guardHalfOpen
		return nil
	case guardHalfOpen:
		return ErrGuardOpen
	default:
		return nil
	}
}

func (g *FlushGuard) after(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case guardHalfOpen:
		if err != nil {
			g.state = guardOpen
			g.openedAt = time.Now()
		} else {
			g.state = guardClosed
			g.failures = 0
		}
	default:
		if err != nil {
			g.failures++
			if g.failures >= g.cfg.MaxFailures {
				g.state = guardOpen
				g.openedAt = time.Now()
			}
		} else {
			g.failures = 0
		}
	}
}

// State reports the guard's current state, for metrics/diagnostics.
func (g *FlushGuard) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case guardOpen:
		return "open"
	case guardHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
