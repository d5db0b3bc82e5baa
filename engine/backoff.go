package engine

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// threadBackoff is PWFComb's per-thread adaptive backoff: halved (reset,
// really) on a successful publication, doubled (capped at max) on a
// failed CAS, as spec.md §4.4 describes. The growth/reset arithmetic
// itself is driven by cenkalti/backoff's ExponentialBackOff rather than
// hand-rolled multiply/divide, the way the teacher reaches for the same
// library for its own retry/backoff needs; threadBackoff's Wait/Success/
// Failure methods are a thin call-site-stable wrapper around it.
type threadBackoff struct {
	mu      sync.Mutex
	eb      *backoff.ExponentialBackOff
	current time.Duration
}

func newThreadBackoff(min, max time.Duration) *threadBackoff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = min
	eb.MaxInterval = max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // never give up; waiters always eventually get served
	eb.Reset()
	return &threadBackoff{eb: eb, current: min}
}

// Wait sleeps for the current backoff duration. Oversubscription
// rescheduling (spec.md §5's "under detected oversubscription, both
// engines reschedule instead of spinning") is realized by this sleep
// itself: a goroutine blocked in time.Sleep yields its OS thread back to
// the Go scheduler for other runnable goroutines.
func (b *threadBackoff) Wait() {
	b.mu.Lock()
	d := b.current
	b.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

// Success resets the backoff back to its initial interval, run after a
// successful combine attempt.
func (b *threadBackoff) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eb.Reset()
	b.current = b.eb.InitialInterval
}

// Failure advances to the ExponentialBackOff's next interval (doubled,
// capped at max), run after a failed CAS.
func (b *threadBackoff) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.eb.NextBackOff()
	if next == b.current && next < b.eb.MaxInterval {
		// The first NextBackOff after a Reset returns the initial interval
		// itself; take one more step so this failure doubles it.
		next = b.eb.NextBackOff()
	}
	b.current = next
}
