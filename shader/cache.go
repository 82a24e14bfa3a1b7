package shader

import (
	"container/list"
	"crypto/sha256"
	"sync"
	"sync/atomic"

	"github.com/gogpu/naga"
)

// DefaultCacheCapacity is the number of programs a cache created with a
// non-positive capacity keeps.
const DefaultCacheCapacity = 16

// builtinCache backs Builtin, so every engine in a process shares one
// compilation of BuiltinSource.
var builtinCache = NewCache(DefaultCacheCapacity)

type cacheKey struct {
	sum    [sha256.Size]byte
	vs, fs string
}

type cacheEntry struct {
	key cacheKey
	set Set
}

// CacheStats are cache counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache memoizes Compile by source and entry points, evicting the least
// recently used program past its capacity. Failed compilations are not
// cached. Cache is safe for concurrent use.
//
// Returned sets share their code with the cache and must not be modified.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]*list.Element
	lru      *list.List // front is most recent

	compile func(string) ([]byte, error)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewCache returns a cache holding up to capacity programs.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element),
		lru:      list.New(),
		compile:  naga.Compile,
	}
}

// Compile returns the cached set for source and the entry points,
// compiling it on a miss. Compilation runs under the cache lock so
// concurrent callers never compile the same program twice.
func (c *Cache) Compile(source, vertexEntry, fragmentEntry string) (Set, error) {
	key := cacheKey{sum: sha256.Sum256([]byte(source)), vs: vertexEntry, fs: fragmentEntry}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.lru.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*cacheEntry).set, nil
	}
	c.misses.Add(1)

	set, err := compileWith(c.compile, source, vertexEntry, fragmentEntry)
	if err != nil {
		return Set{}, err
	}

	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.lru.Remove(oldest)
		c.evictions.Add(1)
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, set: set})
	return set, nil
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops every cached program.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.lru.Init()
}

// Stats returns the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
