package visual

import (
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

var nextBufferID atomic.Uint64

// Buffer is an immutable sample array with an identity token assigned at
// creation. Two buffers holding equal values are still distinct cache keys.
type Buffer struct {
	id     uint64
	values []float64
}

// NewBuffer wraps values. The caller must not modify values afterwards.
func NewBuffer(values []float64) *Buffer {
	return &Buffer{id: nextBufferID.Add(1), values: values}
}

func (b *Buffer) Values() []float64 { return b.values }

func (b *Buffer) Len() int { return len(b.values) }

// Snapshots wraps read so that consecutive equal readings share one Buffer
// and keep hitting the Cache. An empty reading yields nil.
func Snapshots(read func() []float64) func() *Buffer {
	var last *Buffer
	return func() *Buffer {
		v := read()
		if len(v) == 0 {
			last = nil
			return nil
		}
		if last == nil || !slices.Equal(last.values, v) {
			last = NewBuffer(v)
		}
		return last
	}
}

type cacheKey struct {
	length int
	peaks  bool
}

// Cache memoizes Normalize results per buffer instance. Entries for a buffer
// are dropped once the buffer is garbage collected.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]map[cacheKey][]float64
	misses  atomic.Int64
}

func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]map[cacheKey][]float64)}
}

// Normalize returns the memoized result for (b, targetLength, preservePeaks),
// computing it on first use. The returned slice is shared between callers
// and must be treated as read-only.
func (c *Cache) Normalize(b *Buffer, targetLength int, preservePeaks bool) []float64 {
	if b == nil {
		return Normalize(nil, targetLength, preservePeaks)
	}
	key := cacheKey{length: targetLength, peaks: preservePeaks}

	c.mu.Lock()
	defer c.mu.Unlock()

	per, ok := c.entries[b.id]
	if !ok {
		per = make(map[cacheKey][]float64)
		c.entries[b.id] = per
		runtime.AddCleanup(b, c.evict, b.id)
	}
	if r, ok := per[key]; ok {
		return r
	}
	r := Normalize(b.values, targetLength, preservePeaks)
	per[key] = r
	c.misses.Add(1)
	return r
}

// Misses reports how many times Normalize had to compute a result.
func (c *Cache) Misses() int64 { return c.misses.Load() }

// Len reports how many buffers currently have cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evict(id uint64) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
