package dbus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// errNotFound is returned by cache.Get for keys with no cached
// result.
var errNotFound = errors.New("cache entry not found")

// maxCacheEntries bounds the size of a cache. Cached keys come from
// untrusted wire data, so an unbounded cache would let a peer grow
// memory without limit.
const maxCacheEntries = 4096

// cacheEntry is a cached result: either a value or an error.
type cacheEntry[V any] struct {
	val V
	err error
}

// cache is a concurrency-safe memo of values or errors, keyed by K.
type cache[K comparable, V any] struct {
	m sync.Map
	n atomic.Int64
}

// Get returns the cached value or error for k. If k is not cached,
// Get returns errNotFound.
func (c *cache[K, V]) Get(k K) (V, error) {
	ent, ok := c.m.Load(k)
	if !ok {
		var zero V
		return zero, errNotFound
	}
	ret := ent.(cacheEntry[V])
	return ret.val, ret.err
}

// Set caches val for k.
func (c *cache[K, V]) Set(k K, val V) {
	c.store(k, cacheEntry[V]{val: val})
}

// SetErr caches err for k.
func (c *cache[K, V]) SetErr(k K, err error) {
	c.store(k, cacheEntry[V]{err: err})
}

func (c *cache[K, V]) store(k K, ent cacheEntry[V]) {
	if c.n.Load() >= maxCacheEntries {
		return
	}
	if _, loaded := c.m.LoadOrStore(k, ent); !loaded {
		c.n.Add(1)
	}
}
