package blobstore

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/pijulgo/change"
)

func TestSaveLoadRoundTripSmallBlob(t *testing.T) {
	s, err := Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	defer s.Close()

	h := change.HashBytes([]byte("small blob"))
	require.NoError(t, s.Save(h, []byte("small blob")))

	assert.True(t, s.Exists(h))
	got, err := s.Load(h)
	require.NoError(t, err)
	assert.Equal(t, "small blob", string(got))
}

func TestSaveLoadRoundTripLargeBlobIsCompressed(t *testing.T) {
	s, err := Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	defer s.Close()

	data := bytes.Repeat([]byte("x"), compressThreshold+1)
	h := change.HashBytes(data)
	require.NoError(t, s.Save(h, data))

	_, file := s.pathFor(h)
	assert.FileExists(t, file+".gz")

	got, err := s.Load(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	defer s.Close()

	h := change.HashBytes([]byte("gone"))
	require.NoError(t, s.Save(h, []byte("gone")))
	require.NoError(t, s.Remove(h))
	assert.False(t, s.Exists(h))
	require.NoError(t, s.Remove(h), "removing an absent blob is a no-op")
}

func TestPathForFansOutByHashPrefix(t *testing.T) {
	s, err := Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	defer s.Close()

	h := change.HashBytes([]byte("fanout"))
	dir, file := s.pathFor(h)
	assert.True(t, strings.HasPrefix(file, dir))
	assert.Equal(t, filepath.Join(dir, h.String()[2:]), file)
}

func TestSaveWithPoolConcurrency(t *testing.T) {
	s, err := Open(t.TempDir(), 4, nil)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 10; i++ {
		h := change.HashBytes([]byte{byte(i)})
		require.NoError(t, s.Save(h, []byte{byte(i)}))
		assert.True(t, s.Exists(h))
	}
}
