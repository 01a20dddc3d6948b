package cachedir

import (
	"os"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
	"go.uber.org/zap"
)

const (
	appName = "printview"
	subdir  = "thumbnails"
)

// Resolve picks the directory for the on-disk thumbnail cache and migrates
// any files left behind in legacy candidate directories into it.
//
// Priority: explicit override, platform cache dir, XDG data/cache homes,
// ~/Library/Caches, %LOCALAPPDATA%, and finally the system temp dir, which is
// assumed writable.
func Resolve(override string, logger *zap.Logger) string {
	candidates := candidateDirs(override)

	chosen := ""
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Debug("cache dir candidate not writable", zap.String("dir", dir), zap.Error(err))
			continue
		}
		chosen = dir
		break
	}
	if chosen == "" {
		chosen = filepath.Join(os.TempDir(), appName+"-"+subdir)
		os.MkdirAll(chosen, 0755)
	}

	migrateLegacy(chosen, candidates, logger)

	return chosen
}

func candidateDirs(override string) []string {
	dirs := []string{override}

	if scopeDir, err := gap.NewScope(gap.User, appName).CacheDir(); err == nil {
		dirs = append(dirs, filepath.Join(scopeDir, subdir))
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		dirs = append(dirs, filepath.Join(xdgData, appName, subdir))
	}
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		dirs = append(dirs, filepath.Join(xdgCache, appName, subdir))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "Library", "Caches", appName, subdir))
	}
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		dirs = append(dirs, filepath.Join(localAppData, appName, subdir))
	}

	dirs = append(dirs, filepath.Join(os.TempDir(), appName+"-"+subdir))

	return dirs
}

// migrateLegacy moves files from older candidate directories into the chosen
// one. Files already present at the destination are deleted as duplicates.
// Everything here is best-effort.
func migrateLegacy(chosen string, candidates []string, logger *zap.Logger) {
	for _, legacy := range candidates {
		if legacy == "" || legacy == chosen {
			continue
		}

		entries, err := os.ReadDir(legacy)
		if err != nil {
			continue
		}

		moved := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			src := filepath.Join(legacy, entry.Name())
			dst := filepath.Join(chosen, entry.Name())

			if _, err := os.Stat(dst); err == nil {
				os.Remove(src)
				continue
			}

			if err := os.Rename(src, dst); err != nil {
				logger.Debug("failed to migrate cache file", zap.String("src", src), zap.Error(err))
				continue
			}
			moved++
		}

		if moved > 0 {
			logger.Info("migrated legacy thumbnail cache",
				zap.String("from", legacy),
				zap.String("to", chosen),
				zap.Int("files", moved),
			)
		}
	}
}
