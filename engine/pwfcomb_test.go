package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPWFCombCounterFourThreadsThousandOpsEach(t *testing.T) {
	const nthreads = 4
	const opsPerThread = 1000

	eng, err := NewPWFComb(Config{NThreads: nthreads, DisableFlush: true}, int64(0), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for pid := 0; pid < nthreads; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			tl, err := eng.ThreadInit(pid)
			require.NoError(t, err)
			for i := 0; i < opsPerThread; i++ {
				_, err := eng.ApplyOp(context.Background(), tl, fetchAndAdd, 1)
				require.NoError(t, err)
			}
		}(pid)
	}
	wg.Wait()

	require.Equal(t, int64(nthreads*opsPerThread), eng.State())
}

func TestPWFCombSingleThreadRoundTrip(t *testing.T) {
	eng, err := NewPWFComb(Config{NThreads: 1, DisableFlush: true}, int64(10), nil)
	require.NoError(t, err)
	tl, err := eng.ThreadInit(0)
	require.NoError(t, err)

	ret, err := eng.ApplyOp(context.Background(), tl, fetchAndAdd, 5)
	require.NoError(t, err)
	require.Equal(t, int64(15), ret)

	ret, err = eng.ApplyOp(context.Background(), tl, fetchAndAdd, -3)
	require.NoError(t, err)
	require.Equal(t, int64(12), ret)

	require.Equal(t, uint64(2), eng.Seq())
}

func TestPWFCombRejectsInvalidThread(t *testing.T) {
	eng, err := NewPWFComb(Config{NThreads: 2, DisableFlush: true}, int64(0), nil)
	require.NoError(t, err)
	_, err = eng.ThreadInit(7)
	require.ErrorIs(t, err, ErrInvalidThread)
}

func TestPWFCombManyThreadsNoLostUpdates(t *testing.T) {
	const nthreads = 8
	const opsPerThread = 500

	eng, err := NewPWFComb(Config{NThreads: nthreads, DisableFlush: true}, int64(0), nil)
	require.NoError(t, err)

	seen := make([][]int64, nthreads)
	var wg sync.WaitGroup
	for pid := 0; pid < nthreads; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			tl, err := eng.ThreadInit(pid)
			require.NoError(t, err)
			local := make([]int64, 0, opsPerThread)
			for i := 0; i < opsPerThread; i++ {
				ret, err := eng.ApplyOp(context.Background(), tl, fetchAndAdd, 1)
				require.NoError(t, err)
				local = append(local, ret)
			}
			seen[pid] = local
		}(pid)
	}
	wg.Wait()

	require.Equal(t, int64(nthreads*opsPerThread), eng.State())

	all := map[int64]bool{}
	for _, local := range seen {
		for _, v := range local {
			require.False(t, all[v], "return value %d observed twice", v)
			all[v] = true
		}
	}
	require.Len(t, all, nthreads*opsPerThread)
}
