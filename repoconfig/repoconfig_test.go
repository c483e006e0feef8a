package repoconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalAppliesDefaults(t *testing.T) {
	cfg, err := Unmarshal([]byte(``))
	require.NoError(t, err)
	assert.Equal(t, DefaultChannel, cfg.DefaultChannel)
	assert.Equal(t, "myers", cfg.Algorithm)
	assert.Greater(t, cfg.Workers, 0)
}

func TestUnmarshalRejectsUnknownAlgorithm(t *testing.T) {
	_, err := Unmarshal([]byte("diff_algorithm: xyz\n"))
	require.Error(t, err)
}

func TestTypeMapsCompileAndMatch(t *testing.T) {
	cfg, err := Unmarshal([]byte("typemaps:\n  - 'binary *.png'\n  - 'text *.go'\n"))
	require.NoError(t, err)
	require.Len(t, cfg.ReTypeMaps, 2)

	binary, matched := cfg.IsBinaryPath("assets/logo.png")
	assert.True(t, matched)
	assert.True(t, binary)

	binary, matched = cfg.IsBinaryPath("main.go")
	assert.True(t, matched)
	assert.False(t, binary)

	_, matched = cfg.IsBinaryPath("README.md")
	assert.False(t, matched)
}

func TestTypeMapsRejectsMalformedEntry(t *testing.T) {
	_, err := Unmarshal([]byte("typemaps:\n  - 'onlyonefield'\n"))
	require.Error(t, err)
}
