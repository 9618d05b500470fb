package layout

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Cache holds decoded chunks shared by all chunked datasets of a container.
// A nil *Cache caches nothing.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

type cacheKey struct {
	object uint64
	chunk  string
}

// NewCache returns a cache of at most n decoded chunks, or nil if n <= 0.
func NewCache(n int) *Cache {
	if n <= 0 {
		return nil
	}
	return &Cache{lru: lru.New(n)}
}

// get returns a cached chunk. Callers must not modify it.
func (c *Cache) get(k cacheKey) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(k)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *Cache) add(k cacheKey, b []byte) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lru.Add(k, b)
	c.mu.Unlock()
}

func (c *Cache) remove(k cacheKey) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lru.Remove(k)
	c.mu.Unlock()
}

// Len returns the number of cached chunks.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
