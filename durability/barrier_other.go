//go:build !unix

package durability

import "os"

// mapFile is unavailable on non-unix builds; Region falls back to the
// buffered fileSyncBarrier path unconditionally.
func mapFile(f *os.File, size int64) ([]byte, Barrier, error) {
	return nil, nil, errUnsupportedPlatform
}

func unmapFile(data []byte) error { return nil }
