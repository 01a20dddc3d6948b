package cachedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveUsesOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "cache")

	dir := Resolve(override, zap.NewNop())

	assert.Equal(t, override, dir)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMigrateLegacyMovesFiles(t *testing.T) {
	chosen := t.TempDir()
	legacy := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(legacy, "a.png"), []byte("legacy-a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "b.png"), []byte("legacy-b"), 0644))
	// Duplicate: already present at destination, legacy copy should be dropped.
	require.NoError(t, os.WriteFile(filepath.Join(chosen, "b.png"), []byte("current-b"), 0644))

	migrateLegacy(chosen, []string{legacy}, zap.NewNop())

	data, err := os.ReadFile(filepath.Join(chosen, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy-a"), data)

	data, err = os.ReadFile(filepath.Join(chosen, "b.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("current-b"), data, "destination file must win over legacy duplicate")

	entries, err := os.ReadDir(legacy)
	require.NoError(t, err)
	assert.Empty(t, entries, "legacy directory should be drained")
}
