package thumbcache

import (
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// diskStore is the persistent tier of the thumbnail cache. File names are
// percent-encoded cache keys and the file modification time is the freshness
// signal; there is no metadata sidecar. All operations are best-effort.
type diskStore struct {
	dir    string
	budget int64
	ttl    time.Duration // 0 disables TTL expiry
	logger *zap.Logger
	now    func() time.Time

	enforcing atomic.Bool
}

func newDiskStore(dir string, budget int64, ttl time.Duration, logger *zap.Logger) *diskStore {
	return &diskStore{
		dir:    dir,
		budget: budget,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// write persists thumbnail bytes under the key's file name. Writes go through
// a unique temp file and a rename so a concurrent eviction pass never sees a
// partial file.
func (d *diskStore) write(key Key, data []byte) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		d.logger.Debug("failed to create disk cache dir", zap.String("dir", d.dir), zap.Error(err))
		return
	}

	finalPath := filepath.Join(d.dir, key.fileName())
	tmpPath := filepath.Join(d.dir, "."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		d.logger.Debug("disk cache write failed", zap.String("path", tmpPath), zap.Error(err))
		return
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		d.logger.Debug("disk cache rename failed", zap.String("path", finalPath), zap.Error(err))
	}
}

// readIfFresh scans the cache directory for any entry matching the given
// file key, regardless of the modification time embedded in its name. Entries
// older than the TTL are deleted in the background and skipped.
func (d *diskStore) readIfFresh(fk FileKey) ([]byte, Key, bool) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, Key{}, false
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			continue
		}

		key, err := parseFileName(dirEntry.Name())
		if err != nil || key.FileKey != fk {
			continue
		}

		fullPath := filepath.Join(d.dir, dirEntry.Name())

		if d.ttl > 0 {
			info, err := dirEntry.Info()
			if err != nil {
				continue
			}
			if d.now().Sub(info.ModTime()) > d.ttl {
				go func() { os.Remove(fullPath) }()
				continue
			}
		}

		data, err := os.ReadFile(fullPath)
		if err != nil {
			continue
		}
		return data, key, true
	}

	return nil, Key{}, false
}

// enforceSizeLimit deletes files in ascending modification-time order until
// the directory is under budget. A reentrancy guard skips the pass when one
// is already running; enforcement is eventual, not atomic with writes.
func (d *diskStore) enforceSizeLimit() {
	if !d.enforcing.CompareAndSwap(false, true) {
		return
	}
	defer d.enforcing.Store(false)

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		size    int64
		modTime time.Time
	}

	files := make([]fileInfo, 0, len(entries))
	var total int64
	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(d.dir, dirEntry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}

	if total <= d.budget {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	removed := 0
	for _, f := range files {
		if total <= d.budget {
			break
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		total -= f.size
		removed++
	}

	d.logger.Debug("disk cache size enforced",
		zap.Int("removed", removed),
		zap.String("remaining", humanize.IBytes(uint64(total))),
	)
}

// removeLocation deletes every cache file for the given location. Per-file
// errors are ignored.
func (d *diskStore) removeLocation(location string) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			continue
		}
		key, err := parseFileName(dirEntry.Name())
		if err != nil || key.Location != location {
			continue
		}
		os.Remove(filepath.Join(d.dir, dirEntry.Name()))
	}
}

// removeAll wipes the whole cache directory and recreates it.
func (d *diskStore) removeAll() {
	if err := os.RemoveAll(d.dir); err != nil {
		d.logger.Debug("disk cache wipe failed", zap.String("dir", d.dir), zap.Error(err))
		return
	}
	os.MkdirAll(d.dir, 0755)
}
