package stack

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synchlab/pcomb/engine"
)

func newStackEngine(t *testing.T, nthreads int, disableElimination bool) (*Stack, *engine.PBComb[StackState]) {
	t.Helper()
	s := New(nthreads, nil, disableElimination)
	eng, err := engine.NewPBComb(engine.Config{NThreads: nthreads, DisableFlush: true}, s.NewState(), nil)
	require.NoError(t, err)
	eng.SetFinalPersist(s.FinalPersist())
	eng.SetAfterPersist(s.AfterPersist())
	return s, eng
}

func TestStackRoundTrip(t *testing.T) {
	s, eng := newStackEngine(t, 1, false)
	tl, err := eng.ThreadInit(0)
	require.NoError(t, err)

	_, err = eng.ApplyOp(context.Background(), tl, s.Func(), 1)
	require.NoError(t, err)
	_, err = eng.ApplyOp(context.Background(), tl, s.Func(), 2)
	require.NoError(t, err)

	v2, err := eng.ApplyOp(context.Background(), tl, s.Func(), PopOp)
	require.NoError(t, err)
	require.Equal(t, int64(2), v2)

	v1, err := eng.ApplyOp(context.Background(), tl, s.Func(), PopOp)
	require.NoError(t, err)
	require.Equal(t, int64(1), v1)

	vEmpty, err := eng.ApplyOp(context.Background(), tl, s.Func(), PopOp)
	require.NoError(t, err)
	require.Equal(t, int64(EmptySentinel), vEmpty)
}

func TestStackEliminationEightThreads(t *testing.T) {
	const nthreads = 8
	const opsPerThread = 200

	s, eng := newStackEngine(t, nthreads, false)

	var wg sync.WaitGroup
	var successfulPops, pushes int64
	var mu sync.Mutex
	for pid := 0; pid < nthreads; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			tl, err := eng.ThreadInit(pid)
			require.NoError(t, err)
			for i := 0; i < opsPerThread; i++ {
				if i%2 == 0 {
					_, err := eng.ApplyOp(context.Background(), tl, s.Func(), int64(pid*opsPerThread+i))
					require.NoError(t, err)
					mu.Lock()
					pushes++
					mu.Unlock()
				} else {
					ret, err := eng.ApplyOp(context.Background(), tl, s.Func(), PopOp)
					require.NoError(t, err)
					if ret != EmptySentinel {
						mu.Lock()
						successfulPops++
						mu.Unlock()
					}
				}
			}
		}(pid)
	}
	wg.Wait()

	require.LessOrEqual(t, successfulPops, pushes)

	// Drain whatever remains so the stack ends empty, matching the
	// round-trip invariant the scenario checks for.
	tl, err := eng.ThreadInit(0)
	require.NoError(t, err)
	drained := int64(0)
	for {
		ret, err := eng.ApplyOp(context.Background(), tl, s.Func(), PopOp)
		require.NoError(t, err)
		if ret == EmptySentinel {
			break
		}
		drained++
	}
	require.Equal(t, pushes-successfulPops, drained)
}
