package durability

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// Region is a fixed-size, named persistent region: the Go stand-in for
// the NVMM-backed allocations the reference library obtains via
// synchGetPersistentMemory. Everything the engines place in NVMM — the
// request array, the record pool, the versioned pointer — lives inside a
// single Region's byte slice at a caller-chosen offset.
//
// A Region backed by a real file on a real filesystem (an afero.OsFs) is
// memory-mapped so Flush/Drain can issue real msync calls. A Region
// backed by an in-memory filesystem (tests, or any non-unix build) falls
// back to explicit read/write-through and a no-op or file-sync barrier —
// spec.md §6's "one configuration flag selects NVMM vs. a fallback
// shared-memory-backed file" is realized by which afero.Fs the caller
// passes in, not by a second code path in Region itself.
type Region struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	file    afero.File
	data    []byte
	mapped  bool
	barrier Barrier
}

// OpenRegion creates (or truncates) a size-byte region file at path on fs
// and maps or buffers it. disableFlush forces a Dummy barrier regardless
// of backend, for performance studies and for tests that don't care about
// durability timing.
func OpenRegion(fs afero.Fs, path string, size int64, disableFlush bool) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("durability: region size must be positive, got %d", size)
	}

	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("durability: open region %q: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("durability: size region %q: %w", path, err)
	}

	r := &Region{fs: fs, path: path, file: f}

	if disableFlush {
		r.data = make([]byte, size)
		r.barrier = Dummy{}
		return r, nil
	}

	if osFile, ok := asOSFile(f); ok {
		if data, barrier, err := mapFile(osFile, size); err == nil {
			r.data = data
			r.mapped = true
			r.barrier = barrier
			return r, nil
		}
	}

	// Fallback: buffered bytes, flushed to the underlying file explicitly.
	data := make([]byte, size)
	if n, err := f.ReadAt(data, 0); err != nil && n == 0 {
		// fresh file, nothing to read yet — not an error
		_ = err
	}
	r.data = data
	r.barrier = &fileSyncBarrier{file: f, data: data}
	return r, nil
}

func asOSFile(f afero.File) (*os.File, bool) {
	osFile, ok := f.(*os.File)
	return osFile, ok
}

// Bytes exposes the region's backing storage for readers/writers that
// need direct byte access (header encode/decode, record pool slicing).
func (r *Region) Bytes() []byte { return r.data }

// Flush issues a durability flush over [off, off+n) of the region.
func (r *Region) Flush(off, n int64) error { return r.barrier.Flush(off, n) }

// Drain blocks until every flush issued so far is globally durable.
func (r *Region) Drain() error { return r.barrier.Drain() }

// Close unmaps (if mapped) and closes the underlying file.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapped {
		if err := unmapFile(r.data); err != nil {
			_ = r.file.Close()
			return err
		}
	}
	return r.file.Close()
}

// fileSyncBarrier is used when the region could not be memory-mapped
// (non-unix build, or a non-*os.File afero backend such as MemMapFs): a
// flush writes the dirty range back to the file and drain calls Sync.
type fileSyncBarrier struct {
	mu   sync.Mutex
	file afero.File
	data []byte
}

func (b *fileSyncBarrier) Flush(off, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 || n < 0 || off+n > int64(len(b.data)) {
		return fmt.Errorf("durability: flush range [%d,%d) out of bounds (size %d)", off, off+n, len(b.data))
	}
	_, err := b.file.WriteAt(b.data[off:off+n], off)
	return err
}

func (b *fileSyncBarrier) Drain() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Sync()
}
