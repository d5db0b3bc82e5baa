//go:build unix

package durability

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapBarrier is the real durability barrier: flush is msync(MS_SYNC) over
// the dirty byte range (the closest POSIX equivalent to a per-cache-line
// writeback instruction when running on an actual NVMM fsdax mount), and
// drain is msync(MS_SYNC) over the whole mapping, matching the reference
// library's SYNCH_PERSIST/SYNCH_PERSIST_BARRIER pairing: every flush is
// itself synchronous here, so drain's only remaining job is to make sure
// no flush is still in flight.
type mmapBarrier struct {
	data []byte
}

func (b *mmapBarrier) Flush(off, n int64) error {
	if off < 0 || n < 0 || off+n > int64(len(b.data)) {
		return fmt.Errorf("durability: flush range [%d,%d) out of bounds (size %d)", off, off+n, len(b.data))
	}
	// msync needs a page-aligned start address; round the start down to
	// its page boundary (the length need not be a page multiple).
	pageSize := int64(os.Getpagesize())
	start := (off / pageSize) * pageSize
	end := off + n
	return unix.Msync(b.data[start:end], unix.MS_SYNC)
}

func (b *mmapBarrier) Drain() error {
	return unix.Msync(b.data, unix.MS_SYNC)
}

// mapFile memory-maps size bytes of f and returns the mapping plus a
// Barrier that issues real msync calls against it.
func mapFile(f *os.File, size int64) ([]byte, Barrier, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("durability: mmap: %w", err)
	}
	return data, &mmapBarrier{data: data}, nil
}

// unmapFile releases a mapping obtained from mapFile.
func unmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
