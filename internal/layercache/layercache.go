package layercache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is the number of layer previews kept in memory. Previews are
// small enough that bounding by count is sufficient.
const DefaultCapacity = 100

// Key identifies a single layer preview of a plate.
type Key struct {
	PlateID int
	Layer   int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.PlateID, k.Layer)
}

// Fetcher produces layer preview bytes, typically over the backend API.
type Fetcher interface {
	GetPlateLayerImage(ctx context.Context, plateID, layer int) ([]byte, error)
}

type entry struct {
	key   Key
	value []byte
}

// Cache is an in-memory LRU for 2D layer-preview images, used while browsing
// print layers. Concurrent fetches for the same key are coalesced so the
// backend sees at most one request per key at a time. Fetch failures are not
// cached; every caller retries on the next call.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[Key]*list.Element
	lruList  *list.List

	group  singleflight.Group
	logger *zap.Logger

	// Background preload bookkeeping, drained by Close.
	tasks  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(capacity int, logger *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		capacity: capacity,
		items:    make(map[Key]*list.Element),
		lruList:  list.New(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Get returns cached preview bytes and refreshes their LRU position.
func (c *Cache) Get(plateID, layer int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[Key{PlateID: plateID, Layer: layer}]
	if !ok {
		return nil, false
	}

	c.lruList.MoveToFront(elem)
	return elem.Value.(*entry).value, true
}

// Set inserts or updates a preview and evicts the oldest entry when the cache
// is over capacity.
func (c *Cache) Set(plateID, layer int, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{PlateID: plateID, Layer: layer}
	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry).value = value
		c.lruList.MoveToFront(elem)
		return
	}

	if c.lruList.Len() >= c.capacity {
		oldest := c.lruList.Back()
		if oldest != nil {
			delete(c.items, oldest.Value.(*entry).key)
			c.lruList.Remove(oldest)
		}
	}

	elem := c.lruList.PushFront(&entry{key: key, value: value})
	c.items[key] = elem
}

// FetchAndCache returns cached bytes when present, otherwise fetches them.
// Concurrent calls for the same key join a single in-flight fetch and observe
// the same result or error.
func (c *Cache) FetchAndCache(ctx context.Context, fetcher Fetcher, plateID, layer int) ([]byte, error) {
	if data, ok := c.Get(plateID, layer); ok {
		return data, nil
	}

	key := Key{PlateID: plateID, Layer: layer}
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// Re-check under the flight: another caller may have stored it
		// between our miss and this fetch starting.
		if data, ok := c.Get(plateID, layer); ok {
			return data, nil
		}

		data, err := fetcher.GetPlateLayerImage(ctx, plateID, layer)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			c.Set(plateID, layer, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Preload fetches up to count layers following layer in the background,
// skipping ones already cached. Individual failures are logged and swallowed.
func (c *Cache) Preload(fetcher Fetcher, plateID, layer, count int) {
	if count <= 0 {
		count = 2
	}

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()

		for next := layer + 1; next <= layer+count; next++ {
			if c.ctx.Err() != nil {
				return
			}
			if _, ok := c.Get(plateID, next); ok {
				continue
			}
			if _, err := c.FetchAndCache(c.ctx, fetcher, plateID, next); err != nil {
				c.logger.Debug("layer preload failed",
					zap.Int("plate_id", plateID),
					zap.Int("layer", next),
					zap.Error(err),
				)
			}
		}
	}()
}

// Len reports the number of cached previews.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lruList.Len()
}

// Clear drops all entries and order bookkeeping.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[Key]*list.Element)
	c.lruList = list.New()
}

// Close cancels background preloads and waits for them to finish.
func (c *Cache) Close() {
	c.cancel()
	c.tasks.Wait()
}
