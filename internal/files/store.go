package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Entry describes one printable file on local storage, as shown in the
// file browser.
type Entry struct {
	Name         string `json:"name"`
	Subdirectory string `json:"subdirectory"`
	Bytes        int64  `json:"bytes"`
	LastModified int64  `json:"last_modified"`
}

// Path returns the data-dir-relative path of the file.
func (e Entry) Path() string {
	return filepath.Join(e.Subdirectory, e.Name)
}

// Store lists printable files under the data directory and answers
// modification-time lookups for the thumbnail cache.
type Store struct {
	dataDir string
	logger  *zap.Logger

	mu      sync.RWMutex
	entries []Entry
}

func New(dataDir string, logger *zap.Logger) *Store {
	return &Store{
		dataDir: dataDir,
		logger:  logger,
		entries: []Entry{},
	}
}

// printableExtensions covers sliced print files plus plain images the
// touchscreen can preview directly.
var printableExtensions = map[string]bool{
	".sl1":  true,
	".ctb":  true,
	".goo":  true,
	".pwmx": true,
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Scan rebuilds the listing from disk.
func (s *Store) Scan() error {
	found := []Entry{}

	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("error walking data dir", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			// Hidden directories hold caches and slicer droppings.
			if strings.HasPrefix(d.Name(), ".") && path != s.dataDir {
				return filepath.SkipDir
			}
			return nil
		}

		if !printableExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("error getting file info", zap.String("path", path), zap.Error(err))
			return nil
		}

		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return nil
		}

		found = append(found, Entry{
			Name:         filepath.Base(rel),
			Subdirectory: filepath.Dir(rel),
			Bytes:        info.Size(),
			LastModified: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan data directory: %w", err)
	}

	for i := range found {
		if found[i].Subdirectory == "." {
			found[i].Subdirectory = ""
		}
	}

	s.mu.Lock()
	s.entries = found
	s.mu.Unlock()

	return nil
}

// List returns the current listing.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// LastModified stats the file and returns its modification time in unix
// seconds, or 0 when the file cannot be examined.
func (s *Store) LastModified(subdirectory, fileName string) int64 {
	info, err := os.Stat(filepath.Join(s.dataDir, subdirectory, fileName))
	if err != nil {
		return 0
	}
	return info.ModTime().Unix()
}
