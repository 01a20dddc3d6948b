package thumbcache

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Size selects the thumbnail variant.
type Size string

const (
	SizeSmall Size = "small"
	SizeLarge Size = "large"
)

// FileKey identifies a thumbnail independent of the source file's
// modification time. It is the primary index of the memory cache.
type FileKey struct {
	Location string
	FilePath string
	Size     Size
}

// Key is the full cache identity, including the source modification time
// (unix seconds, 0 when unknown). It names files in the disk cache.
type Key struct {
	FileKey
	LastModified int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", k.Location, k.FilePath, k.LastModified, k.Size)
}

// fileName returns the percent-encoded disk-cache file name for the key.
func (k Key) fileName() string {
	return url.QueryEscape(k.String())
}

// parseFileName decodes a disk-cache file name back into a key.
func parseFileName(name string) (Key, error) {
	raw, err := url.QueryUnescape(name)
	if err != nil {
		return Key{}, fmt.Errorf("malformed cache file name: %w", err)
	}

	parts := strings.Split(raw, "|")
	if len(parts) < 4 {
		return Key{}, fmt.Errorf("malformed cache key: %q", raw)
	}

	mtime, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("malformed cache key mtime: %w", err)
	}

	size := Size(parts[len(parts)-1])
	if size != SizeSmall && size != SizeLarge {
		return Key{}, fmt.Errorf("unknown thumbnail size: %q", parts[len(parts)-1])
	}

	return Key{
		FileKey: FileKey{
			Location: parts[0],
			FilePath: strings.Join(parts[1:len(parts)-2], "|"),
			Size:     size,
		},
		LastModified: mtime,
	}, nil
}

// Request describes a single thumbnail lookup.
type Request struct {
	Location     string
	Subdirectory string
	FileName     string
	LastModified int64 // unix seconds, 0 when unknown
	Size         Size
	ForceRefresh bool
}

func (r Request) filePath() string {
	return path.Join(r.Subdirectory, r.FileName)
}

func (r Request) fileKey() FileKey {
	return FileKey{Location: r.Location, FilePath: r.filePath(), Size: r.Size}
}

func (r Request) key() Key {
	return Key{FileKey: r.fileKey(), LastModified: r.LastModified}
}
