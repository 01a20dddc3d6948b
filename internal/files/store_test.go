package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScanAndList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plates"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cache"), 0755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "calibration.sl1"), []byte("sliced"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plates", "benchy.ctb"), []byte("sliced"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not printable"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cache", "hidden.sl1"), []byte("ignored"), 0644))

	store := New(dir, zap.NewNop())
	require.NoError(t, store.Scan())

	entries := store.List()
	require.Len(t, entries, 2)

	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}

	root := byName["calibration.sl1"]
	assert.Equal(t, "", root.Subdirectory)
	assert.Equal(t, int64(6), root.Bytes)
	assert.NotZero(t, root.LastModified)

	nested := byName["benchy.ctb"]
	assert.Equal(t, "plates", nested.Subdirectory)
	assert.Equal(t, filepath.Join("plates", "benchy.ctb"), nested.Path())
}

func TestLastModified(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sl1"), []byte("x"), 0644))

	store := New(dir, zap.NewNop())

	assert.NotZero(t, store.LastModified("", "a.sl1"))
	assert.Zero(t, store.LastModified("", "missing.sl1"), "unknown files report 0")
}
