package durability

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Witness records, outside of the process holding the region, that a
// given (engine instance, version) pair was observed durable — the
// external observer spec.md §8's crash-recovery scenario needs: "kill the
// process after the durability barrier for version N has returned, then
// restart and confirm the recovered state is at least version N." A
// Witness entry written after Drain() returns is proof the combiner
// reached that point; a recovered engine whose own recovered version is
// behind the last witnessed version has lost committed work and that is
// a property failure, not the engine's prerogative to paper over.
type Witness struct {
	client *redis.Client
	key    string
}

// NewWitness opens a witness log keyed by engineID against the given
// Redis endpoint (a real server in production, a miniredis instance in
// tests).
func NewWitness(addr, engineID string) *Witness {
	return &Witness{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    "pcomb:witness:" + engineID,
	}
}

// Observe records that version was seen durable. A caller invokes it
// after Drain() returns for the publication of that version; the engines
// in this module do not call it themselves.
func (w *Witness) Observe(ctx context.Context, version uint64) error {
	return w.client.Set(ctx, w.key, version, 0).Err()
}

// LastObserved returns the version most recently passed to Observe, or 0
// if none has been observed yet. Each Observe overwrites the previous
// value, so this is the highest version only when versions are observed
// in increasing order.
func (w *Witness) LastObserved(ctx context.Context) (uint64, error) {
	val, err := w.client.Get(ctx, w.key).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("durability: witness read: %w", err)
	}
	return val, nil
}

// Close releases the underlying Redis connection.
func (w *Witness) Close() error {
	return w.client.Close()
}
