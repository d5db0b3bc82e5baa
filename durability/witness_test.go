package durability

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestWitnessObserveAndRead(t *testing.T) {
	srv := miniredis.RunT(t)
	w := NewWitness(srv.Addr(), "engine-1")
	defer w.Close()

	ctx := context.Background()

	v, err := w.LastObserved(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)

	require.NoError(t, w.Observe(ctx, 7))
	v, err = w.LastObserved(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)

	require.NoError(t, w.Observe(ctx, 12))
	v, err = w.LastObserved(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(12), v)
}

func TestWitnessSeparateEnginesIsolated(t *testing.T) {
	srv := miniredis.RunT(t)
	a := NewWitness(srv.Addr(), "engine-a")
	b := NewWitness(srv.Addr(), "engine-b")
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Observe(ctx, 3))

	va, err := a.LastObserved(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), va)

	vb, err := b.LastObserved(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), vb)
}
