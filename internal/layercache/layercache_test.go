package layercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int32
	block   chan struct{}
	err     error
	payload func(plateID, layer int) []byte
}

func (f *fakeFetcher) GetPlateLayerImage(ctx context.Context, plateID, layer int) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.payload != nil {
		return f.payload(plateID, layer), nil
	}
	return []byte(fmt.Sprintf("plate-%d-layer-%d", plateID, layer)), nil
}

func (f *fakeFetcher) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func newTestCache(t *testing.T, capacity int) *Cache {
	t.Helper()
	c := New(capacity, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestSetGet(t *testing.T) {
	c := newTestCache(t, 10)

	c.Set(1, 0, []byte("layer0"))

	data, ok := c.Get(1, 0)
	require.True(t, ok)
	assert.Equal(t, []byte("layer0"), data)

	_, ok = c.Get(1, 1)
	assert.False(t, ok)
}

func TestSetUpdatesExisting(t *testing.T) {
	c := newTestCache(t, 10)

	c.Set(1, 0, []byte("old"))
	c.Set(1, 0, []byte("new"))

	data, ok := c.Get(1, 0)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), data)
	assert.Equal(t, 1, c.Len())
}

func TestEvictionOrder(t *testing.T) {
	c := newTestCache(t, 100)

	// Fill to capacity, then one more evicts the oldest.
	for layer := 0; layer < 100; layer++ {
		c.Set(1, layer, []byte(fmt.Sprintf("layer-%d", layer)))
	}
	assert.Equal(t, 100, c.Len())

	c.Set(1, 100, []byte("layer-100"))

	_, ok := c.Get(1, 0)
	assert.False(t, ok, "oldest entry should be evicted")

	data, ok := c.Get(1, 100)
	require.True(t, ok)
	assert.Equal(t, []byte("layer-100"), data)
	assert.Equal(t, 100, c.Len())
}

func TestGetTouchesOrder(t *testing.T) {
	c := newTestCache(t, 3)

	c.Set(1, 0, []byte("a"))
	c.Set(1, 1, []byte("b"))
	c.Set(1, 2, []byte("c"))

	// Touch the oldest so the next insert evicts layer 1 instead.
	_, ok := c.Get(1, 0)
	require.True(t, ok)

	c.Set(1, 3, []byte("d"))

	_, ok = c.Get(1, 1)
	assert.False(t, ok)
	_, ok = c.Get(1, 0)
	assert.True(t, ok)
}

func TestFetchAndCache(t *testing.T) {
	c := newTestCache(t, 10)
	fetcher := &fakeFetcher{}

	data, err := c.FetchAndCache(context.Background(), fetcher, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("plate-1-layer-5"), data)
	assert.Equal(t, 1, fetcher.callCount())

	// Second call is served from cache.
	data, err = c.FetchAndCache(context.Background(), fetcher, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("plate-1-layer-5"), data)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestFetchAndCacheDedup(t *testing.T) {
	c := newTestCache(t, 10)
	fetcher := &fakeFetcher{block: make(chan struct{})}

	const callers = 8
	results := make(chan []byte, callers)
	var ready sync.WaitGroup
	ready.Add(callers)

	for i := 0; i < callers; i++ {
		go func() {
			ready.Done()
			data, err := c.FetchAndCache(context.Background(), fetcher, 2, 7)
			if err == nil {
				results <- data
			}
		}()
	}

	ready.Wait()
	time.Sleep(50 * time.Millisecond) // let all callers join the flight
	close(fetcher.block)

	for i := 0; i < callers; i++ {
		select {
		case data := <-results:
			assert.Equal(t, []byte("plate-2-layer-7"), data)
		case <-time.After(2 * time.Second):
			t.Fatal("caller did not complete")
		}
	}

	assert.Equal(t, 1, fetcher.callCount(), "exactly one backend fetch expected")
}

func TestFetchErrorNotCached(t *testing.T) {
	c := newTestCache(t, 10)
	fetchErr := errors.New("backend down")
	fetcher := &fakeFetcher{err: fetchErr}

	_, err := c.FetchAndCache(context.Background(), fetcher, 1, 0)
	require.ErrorIs(t, err, fetchErr)

	// Failures are not cached, so the next call fetches again.
	fetcher.err = nil
	data, err := c.FetchAndCache(context.Background(), fetcher, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("plate-1-layer-0"), data)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestEmptyResultNotCached(t *testing.T) {
	c := newTestCache(t, 10)
	fetcher := &fakeFetcher{payload: func(int, int) []byte { return nil }}

	data, err := c.FetchAndCache(context.Background(), fetcher, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, 0, c.Len())
}

func TestPreload(t *testing.T) {
	c := newTestCache(t, 10)
	fetcher := &fakeFetcher{}

	c.Set(3, 1, []byte("already"))
	c.Preload(fetcher, 3, 0, 2)

	require.Eventually(t, func() bool {
		_, ok := c.Get(3, 2)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Layer 1 was cached, so only layer 2 was fetched.
	assert.Equal(t, 1, fetcher.callCount())

	data, ok := c.Get(3, 1)
	require.True(t, ok)
	assert.Equal(t, []byte("already"), data)
}

func TestPreloadSwallowsErrors(t *testing.T) {
	c := newTestCache(t, 10)
	fetcher := &fakeFetcher{err: errors.New("boom")}

	c.Preload(fetcher, 1, 0, 2)

	require.Eventually(t, func() bool {
		return fetcher.callCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, c.Len())
}

func TestClear(t *testing.T) {
	c := newTestCache(t, 10)

	c.Set(1, 0, []byte("a"))
	c.Set(1, 1, []byte("b"))
	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(1, 0)
	assert.False(t, ok)
}
