package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// MemoryCache keeps the most recently used pixel buffers in process memory.
type MemoryCache struct {
	lru *lru.Cache
}

// NewMemoryCache creates an LRU store holding at most maxSize buffers (minimum 1).
func NewMemoryCache(maxSize int) *MemoryCache {
	// lru.New only fails for a non-positive size.
	c, _ := lru.New(max(maxSize, 1))
	return &MemoryCache{lru: c}
}

// Has does not refresh recency.
func (c *MemoryCache) Has(key PixelKey) bool {
	return c.lru.Contains(key)
}

func (c *MemoryCache) Get(key PixelKey) ([]byte, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *MemoryCache) Set(key PixelKey, value []byte) {
	c.lru.Add(key, value)
}

func (c *MemoryCache) Clear() {
	c.lru.Purge()
}
