package thumbcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMemoryBudget = 50 << 20
	DefaultDiskBudget   = 512 << 20
	DefaultMemoryTTL    = 10 * time.Minute
)

// Extractor produces raw thumbnail bytes for a print file, either by decoding
// locally or by asking the backend. The cache treats it as opaque.
type Extractor interface {
	ExtractThumbnailBytes(ctx context.Context, location, subdirectory, fileName string, size Size) ([]byte, error)
}

type entry struct {
	key          FileKey
	lastModified int64
	data         []byte // nil records a failed extraction
	storedAt     time.Time
	elem         *list.Element
}

// Options configures a thumbnail cache. Zero values select the defaults;
// DiskTTL of zero disables disk expiry.
type Options struct {
	Dir          string
	MemoryBudget int64
	MemoryTTL    time.Duration
	DiskBudget   int64
	DiskTTL      time.Duration
}

// Cache is a two-tier (memory + disk) cache for file-browser thumbnails.
//
// The memory tier is indexed by FileKey, so a lookup never depends on the
// exact source modification time: a hit with a different mtime is served
// immediately and reconciled by a background refresh. Extraction failures are
// cached as a nil entry so repeated failures don't storm the backend. The
// disk tier stores raw bytes under percent-encoded key names and uses file
// mtime against a configurable TTL as its only freshness signal.
type Cache struct {
	mu           sync.Mutex
	entries      map[FileKey]*entry
	order        *list.List // front = most recently stored
	memoryBytes  int64
	nonNil       int
	inflight     map[string]FileKey
	cleared      map[string]time.Time // location -> last cleared
	clearedAllAt time.Time

	group     singleflight.Group
	disk      *diskStore
	extractor Extractor
	logger    *zap.Logger

	memoryBudget int64
	memoryTTL    time.Duration
	now          func() time.Time

	tasks  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options, extractor Extractor, logger *zap.Logger) *Cache {
	if opts.MemoryBudget <= 0 {
		opts.MemoryBudget = DefaultMemoryBudget
	}
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = DefaultMemoryTTL
	}
	if opts.DiskBudget <= 0 {
		opts.DiskBudget = DefaultDiskBudget
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:      make(map[FileKey]*entry),
		order:        list.New(),
		inflight:     make(map[string]FileKey),
		cleared:      make(map[string]time.Time),
		disk:         newDiskStore(opts.Dir, opts.DiskBudget, opts.DiskTTL, logger),
		extractor:    extractor,
		logger:       logger,
		memoryBudget: opts.MemoryBudget,
		memoryTTL:    opts.MemoryTTL,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}

	// A burst of writes in a previous run can leave the directory over
	// budget, so enforce once at startup.
	c.runTask(c.disk.enforceSizeLimit)

	return c
}

// GetThumbnail returns thumbnail bytes for the request, or false when no
// thumbnail is available (including a cached extraction failure). No error
// crosses this boundary; failures are absorbed and cached.
func (c *Cache) GetThumbnail(ctx context.Context, req Request) ([]byte, bool) {
	c.mu.Lock()
	c.pruneExpiredLocked()

	if req.ForceRefresh {
		c.mu.Unlock()
		return c.fetchAndStore(ctx, req, false)
	}

	if ent, ok := c.entries[req.fileKey()]; ok {
		data := ent.data
		// Serve the cached bytes immediately; a changed source mtime only
		// schedules a reconciling refresh. Zero means unknown and never
		// triggers one.
		stale := req.LastModified != 0 && ent.lastModified != 0 &&
			req.LastModified != ent.lastModified
		c.mu.Unlock()

		if stale {
			c.scheduleRefresh(req)
		}
		return data, data != nil
	}
	c.mu.Unlock()

	if data, key, ok := c.disk.readIfFresh(req.fileKey()); ok {
		c.promote(key, data)
		return data, true
	}

	return c.fetchAndStore(ctx, req, true)
}

// DiskCacheDir reports the disk tier's directory, for diagnostics.
func (c *Cache) DiskCacheDir() string {
	return c.disk.dir
}

// Clear drops all memory and in-flight state. The disk tier is untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[FileKey]*entry)
	c.order.Init()
	c.memoryBytes = 0
	c.nonNil = 0

	for flightKey := range c.inflight {
		c.group.Forget(flightKey)
	}
	c.inflight = make(map[string]FileKey)
	c.clearedAllAt = c.now()
}

// ClearLocation removes memory and in-flight entries for one location
// synchronously and deletes its disk files in the background.
func (c *Cache) ClearLocation(location string) {
	c.mu.Lock()
	for fk, ent := range c.entries {
		if fk.Location == location {
			c.removeEntryLocked(ent)
		}
	}
	for flightKey, fk := range c.inflight {
		if fk.Location == location {
			c.group.Forget(flightKey)
			delete(c.inflight, flightKey)
		}
	}
	c.cleared[location] = c.now()
	c.mu.Unlock()

	c.runTask(func() { c.disk.removeLocation(location) })
}

// ClearDisk wipes the disk tier, best-effort.
func (c *Cache) ClearDisk() {
	c.disk.removeAll()
}

// ClearAll wipes disk then memory.
func (c *Cache) ClearAll() {
	c.ClearDisk()
	c.Clear()
}

// Close cancels scheduled background work and waits for it to drain.
func (c *Cache) Close() {
	c.cancel()
	c.tasks.Wait()
}

// fetchAndStore runs the extraction through the in-flight map so concurrent
// identical requests share one extractor call, then stores the outcome,
// failed or not. When recheck is set, a store that raced us between the miss
// and the flight starting is served instead of extracting again; refreshes
// and forced fetches skip that so they always reach the extractor.
func (c *Cache) fetchAndStore(ctx context.Context, req Request, recheck bool) ([]byte, bool) {
	flightKey := req.key().String()
	started := c.now()

	c.mu.Lock()
	c.inflight[flightKey] = req.fileKey()
	c.mu.Unlock()

	v, _, _ := c.group.Do(flightKey, func() (interface{}, error) {
		if recheck {
			c.mu.Lock()
			if ent, ok := c.entries[req.fileKey()]; ok {
				data := ent.data
				c.mu.Unlock()
				return data, nil
			}
			c.mu.Unlock()
		}

		data, err := c.extractor.ExtractThumbnailBytes(ctx, req.Location, req.Subdirectory, req.FileName, req.Size)
		if err != nil {
			c.logger.Debug("thumbnail extraction failed",
				zap.String("location", req.Location),
				zap.String("file", req.filePath()),
				zap.String("size", string(req.Size)),
				zap.Error(err),
			)
			data = nil
		}
		c.storeFetched(req, data, started)
		return data, nil
	})

	c.mu.Lock()
	delete(c.inflight, flightKey)
	c.mu.Unlock()

	data, _ := v.([]byte)
	return data, data != nil
}

// storeFetched records a fetch outcome: memory store, cross-version
// invalidation, and an async disk write. A clear that happened after the
// fetch started suppresses the store.
func (c *Cache) storeFetched(req Request, data []byte, started time.Time) {
	fk := req.fileKey()

	c.mu.Lock()
	if c.suppressedLocked(fk.Location, started) {
		c.mu.Unlock()
		return
	}
	c.storeLocked(fk, req.LastModified, data)
	c.dropOtherVersionsLocked(fk)
	c.mu.Unlock()

	if data != nil {
		key := req.key()
		c.runTask(func() {
			c.disk.write(key, data)
			c.disk.enforceSizeLimit()
		})
	}
}

// promote moves a disk hit into the memory tier without rewriting the disk.
func (c *Cache) promote(key Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storeLocked(key.FileKey, key.LastModified, data)
}

// scheduleRefresh re-fetches a stale entry in the background. The in-flight
// map collapses repeated schedules for the same key.
func (c *Cache) scheduleRefresh(req Request) {
	req.ForceRefresh = false
	c.runTask(func() {
		c.fetchAndStore(c.ctx, req, false)
	})
}

func (c *Cache) runTask(fn func()) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		if c.ctx.Err() != nil {
			return
		}
		fn()
	}()
}

func (c *Cache) suppressedLocked(location string, started time.Time) bool {
	if c.clearedAllAt.After(started) {
		return true
	}
	return c.cleared[location].After(started)
}

// pruneExpiredLocked drops memory entries older than the TTL. It is a full
// scan on every read, acceptable at this cache's cardinality.
func (c *Cache) pruneExpiredLocked() {
	cutoff := c.now().Add(-c.memoryTTL)
	for _, ent := range c.entries {
		if ent.storedAt.Before(cutoff) {
			c.removeEntryLocked(ent)
		}
	}
}

func (c *Cache) storeLocked(fk FileKey, lastModified int64, data []byte) {
	if ent, ok := c.entries[fk]; ok {
		c.memoryBytes += int64(len(data)) - int64(len(ent.data))
		if ent.data != nil {
			c.nonNil--
		}
		if data != nil {
			c.nonNil++
		}
		ent.data = data
		ent.lastModified = lastModified
		ent.storedAt = c.now()
		c.order.MoveToFront(ent.elem)
	} else {
		ent := &entry{
			key:          fk,
			lastModified: lastModified,
			data:         data,
			storedAt:     c.now(),
		}
		ent.elem = c.order.PushFront(fk)
		c.entries[fk] = ent
		c.memoryBytes += int64(len(data))
		if data != nil {
			c.nonNil++
		}
	}

	c.evictLocked()
}

// evictLocked removes oldest entries until the byte budget holds. The nonNil
// guard stops the loop when only failed (nil) entries remain.
func (c *Cache) evictLocked() {
	for c.memoryBytes > c.memoryBudget && c.order.Len() > 0 {
		if c.nonNil == 0 {
			break
		}
		oldest := c.order.Back()
		fk := oldest.Value.(FileKey)
		c.removeEntryLocked(c.entries[fk])
	}
}

// dropOtherVersionsLocked removes every memory and in-flight entry for the
// same source file that doesn't match the key just stored, bounding drift
// between divergent cached versions of one file.
func (c *Cache) dropOtherVersionsLocked(keep FileKey) {
	for fk, ent := range c.entries {
		if fk == keep {
			continue
		}
		if fk.Location == keep.Location && fk.FilePath == keep.FilePath {
			c.removeEntryLocked(ent)
		}
	}

	for flightKey, fk := range c.inflight {
		if fk == keep {
			continue
		}
		if fk.Location == keep.Location && fk.FilePath == keep.FilePath {
			c.group.Forget(flightKey)
			delete(c.inflight, flightKey)
		}
	}
}

func (c *Cache) removeEntryLocked(ent *entry) {
	c.order.Remove(ent.elem)
	delete(c.entries, ent.key)
	c.memoryBytes -= int64(len(ent.data))
	if ent.data != nil {
		c.nonNil--
	}
}
