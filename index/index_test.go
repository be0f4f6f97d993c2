package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenAndMark(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "processed.db"))
	require.NoError(t, err)
	defer store.Close()

	seen, err := store.Seen("/videos/round1.mp4")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark("/videos/round1.mp4", "round1", "run-1", 4))

	seen, err = store.Seen("/videos/round1.mp4")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.Seen("/videos/round2.mp4")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMarkOverwrites(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "processed.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Mark("/v.mp4", "v", "run-1", 1))
	require.NoError(t, store.Mark("/v.mp4", "v", "run-2", 7))

	seen, err := store.Seen("/v.mp4")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "processed.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
