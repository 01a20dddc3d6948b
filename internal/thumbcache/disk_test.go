package thumbcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func diskKey(location, filePath string, mtime int64) Key {
	return Key{
		FileKey:      FileKey{Location: location, FilePath: filePath, Size: SizeSmall},
		LastModified: mtime,
	}
}

func TestDiskStoreWriteRead(t *testing.T) {
	d := newDiskStore(t.TempDir(), DefaultDiskBudget, 0, zap.NewNop())

	key := diskKey("local", "plates/a.sl1", 100)
	d.write(key, []byte("thumb"))

	data, got, ok := d.readIfFresh(key.FileKey)
	require.True(t, ok)
	assert.Equal(t, []byte("thumb"), data)
	assert.Equal(t, key, got)
}

func TestDiskStoreReadMatchesAnyMtime(t *testing.T) {
	d := newDiskStore(t.TempDir(), DefaultDiskBudget, 0, zap.NewNop())

	d.write(diskKey("local", "plates/a.sl1", 100), []byte("thumb"))

	// Lookup ignores the mtime embedded in the name; the caller reconciles.
	data, got, ok := d.readIfFresh(FileKey{Location: "local", FilePath: "plates/a.sl1", Size: SizeSmall})
	require.True(t, ok)
	assert.Equal(t, []byte("thumb"), data)
	assert.Equal(t, int64(100), got.LastModified)
}

func TestDiskStoreEnforceSizeLimit(t *testing.T) {
	dir := t.TempDir()
	d := newDiskStore(dir, 100, 0, zap.NewNop())

	keys := []Key{
		diskKey("local", "old.sl1", 1),
		diskKey("local", "mid.sl1", 2),
		diskKey("local", "new.sl1", 3),
	}
	for i, key := range keys {
		d.write(key, make([]byte, 60))
		// Stagger mtimes so eviction order is deterministic.
		ts := time.Now().Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(filepath.Join(dir, key.fileName()), ts, ts))
	}

	d.enforceSizeLimit()

	_, _, ok := d.readIfFresh(keys[0].FileKey)
	assert.False(t, ok, "oldest file deleted first")
	_, _, ok = d.readIfFresh(keys[1].FileKey)
	assert.False(t, ok, "still over budget after one deletion")
	_, _, ok = d.readIfFresh(keys[2].FileKey)
	assert.True(t, ok, "newest file survives")
}

func TestDiskStoreRemoveLocation(t *testing.T) {
	d := newDiskStore(t.TempDir(), DefaultDiskBudget, 0, zap.NewNop())

	keep := diskKey("local", "a.sl1", 1)
	drop := diskKey("usb", "b.sl1", 1)
	d.write(keep, []byte("keep"))
	d.write(drop, []byte("drop"))

	d.removeLocation("usb")

	_, _, ok := d.readIfFresh(keep.FileKey)
	assert.True(t, ok)
	_, _, ok = d.readIfFresh(drop.FileKey)
	assert.False(t, ok)
}

func TestDiskStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	d := newDiskStore(dir, DefaultDiskBudget, 0, zap.NewNop())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("not a cache file"), 0644))

	_, _, ok := d.readIfFresh(FileKey{Location: "local", FilePath: "a.sl1", Size: SizeSmall})
	assert.False(t, ok)
}
