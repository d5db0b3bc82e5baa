package engine

import "testing"

func TestPackPointerRoundTrip(t *testing.T) {
	cases := []struct {
		seq   uint64
		index int
	}{
		{0, 0},
		{1, 1},
		{12345, 42},
		{(1 << seqBits) - 1, (1 << indexBits) - 1},
	}
	for _, c := range cases {
		p := packPointer(c.seq, c.index)
		if p.seq() != c.seq {
			t.Fatalf("seq round-trip: got %d want %d", p.seq(), c.seq)
		}
		if p.index() != c.index {
			t.Fatalf("index round-trip: got %d want %d", p.index(), c.index)
		}
	}
}

func TestAtomicPointerCAS(t *testing.T) {
	var a atomicPointer
	a.store(packPointer(1, 2))
	if !a.compareAndSwap(packPointer(1, 2), packPointer(2, 3)) {
		t.Fatal("expected CAS to succeed")
	}
	if a.compareAndSwap(packPointer(1, 2), packPointer(9, 9)) {
		t.Fatal("expected stale CAS to fail")
	}
	got := a.load()
	if got.seq() != 2 || got.index() != 3 {
		t.Fatalf("unexpected pointer after CAS: seq=%d index=%d", got.seq(), got.index())
	}
}
