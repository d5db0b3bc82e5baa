package durability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flakyBarrier struct {
	fail bool
}

func (f *flakyBarrier) Flush(int64, int64) error {
	if f.fail {
		return errors.New("medium unavailable")
	}
	return nil
}

func (f *flakyBarrier) Drain() error { return nil }

func TestFlushGuardOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyBarrier{fail: true}
	g := NewFlushGuard(inner, GuardConfig{MaxFailures: 3, Cooldown: 20 * time.Millisecond})

	for i := 0; i < 3; i++ {
		err := g.Flush(0, 8)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrGuardOpen)
	}
	require.Equal(t, "open", g.State())

	err := g.Flush(0, 8)
	require.ErrorIs(t, err, ErrGuardOpen)
}

func TestFlushGuardRecoversAfterCooldown(t *testing.T) {
	inner := &flakyBarrier{fail: true}
	g := NewFlushGuard(inner, GuardConfig{MaxFailures: 1, Cooldown: 10 * time.Millisecond})

	require.Error(t, g.Flush(0, 8))
	require.Equal(t, "open", g.State())

	time.Sleep(15 * time.Millisecond)
	inner.fail = false
	require.NoError(t, g.Flush(0, 8))
	require.Equal(t, "closed", g.State())
}
