package durability

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestOpenRegionMemBackedRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := OpenRegion(fs, "/region", 4096, false)
	require.NoError(t, err)
	defer r.Close()

	data := r.Bytes()
	require.Len(t, data, 4096)

	copy(data[0:5], []byte("hello"))
	require.NoError(t, r.Flush(0, 5))
	require.NoError(t, r.Drain())
}

func TestOpenRegionDisableFlushUsesDummy(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := OpenRegion(fs, "/region", 64, true)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Flush(0, 64))
	require.NoError(t, r.Drain())
}

func TestOpenRegionRejectsNonPositiveSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := OpenRegion(fs, "/region", 0, false)
	require.Error(t, err)
}

func TestChecksumDetectsTorn(t *testing.T) {
	payload := []byte("durable record body")
	sum := Checksum(payload)
	require.True(t, Verify(payload, sum))

	corrupted := append([]byte(nil), payload...)
	corrupted[0] ^= 0xFF
	require.False(t, Verify(corrupted, sum))
}
