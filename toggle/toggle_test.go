package toggle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearIsSet(t *testing.T) {
	v := New(130)
	require.False(t, v.IsSet(5))
	v.Set(5)
	require.True(t, v.IsSet(5))
	v.Clear(5)
	require.False(t, v.IsSet(5))
}

func TestNegateAndNegateBank(t *testing.T) {
	v := New(128)
	v.Set(3)
	v.Negate()
	require.False(t, v.IsSet(3))
	require.True(t, v.IsSet(4))

	v2 := New(128)
	v2.Set(70) // bank 1
	v2.NegateBank(1)
	require.False(t, v2.IsSet(70))
	require.True(t, v2.IsSet(65)) // other bits in bank 1 now set
	require.False(t, v2.IsSet(5)) // bank 0 untouched
}

func TestXorOr(t *testing.T) {
	a := New(64)
	b := New(64)
	a.Set(1)
	b.Set(2)
	out := New(64)
	out.Xor(a, b)
	require.True(t, out.IsSet(1))
	require.True(t, out.IsSet(2))

	out2 := New(64)
	out2.Or(a, b)
	require.True(t, out2.IsSet(1))
	require.True(t, out2.IsSet(2))
}

func TestFirstSetInCell(t *testing.T) {
	v := New(64)
	require.Equal(t, -1, v.FirstSetInCell(0))
	v.Set(9)
	v.Set(3)
	require.Equal(t, 3, v.FirstSetInCell(0))
	v.ClearCellBit(0, 3)
	require.Equal(t, 9, v.FirstSetInCell(0))
}

func TestAtomicToggleBitConcurrentDifferentBits(t *testing.T) {
	v := New(64)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.AtomicToggleBit(i)
		}()
	}
	wg.Wait()
	for i := 0; i < 32; i++ {
		require.True(t, v.IsSet(i), "bit %d should be set after one toggle", i)
	}
	for i := 32; i < 64; i++ {
		require.False(t, v.IsSet(i))
	}
}

func TestAtomicOrInto(t *testing.T) {
	a := New(64)
	a.Set(10)
	dst := New(64)
	dst.Set(20)
	a.AtomicOrInto(dst, 0)
	require.True(t, dst.IsSet(10))
	require.True(t, dst.IsSet(20))
}

func TestNumCells(t *testing.T) {
	require.Equal(t, 1, NumCells(1))
	require.Equal(t, 1, NumCells(64))
	require.Equal(t, 2, NumCells(65))
	require.Equal(t, 2, NumCells(128))
	require.Equal(t, 3, NumCells(129))
}
