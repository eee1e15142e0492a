package util

import (
	"container/list"
	"sync"
	"time"
)

type cacheKey interface{ uint32 | ~string }

type cacheEntry[K cacheKey, V any] struct {
	timer *time.Timer
	elem  *list.Element
	value V
}

// LRWCache keeps at most maxSize entries, each for at most ttl. When full,
// Set evicts the least recently written entry.
type LRWCache[K cacheKey, V any] struct {
	ttl     time.Duration
	maxSize int
	order   *list.List
	data    map[K]*cacheEntry[K, V]
	mu      sync.Mutex
}

func NewLRWCache[K cacheKey, V any](ttl time.Duration, maxSize int) *LRWCache[K, V] {
	return &LRWCache[K, V]{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		data:    make(map[K]*cacheEntry[K, V], maxSize),
	}
}

func (c *LRWCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delete(key)
	for c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.delete(c.order.Front().Value.(K))
	}
	entry := &cacheEntry[K, V]{
		elem:  c.order.PushBack(key),
		value: value,
	}
	entry.timer = time.AfterFunc(c.ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.data[key]; ok && cur == entry {
			c.delete(key)
		}
	})
	c.data[key] = entry
}

func (c *LRWCache[K, V]) Get(key K) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.data[key]
	if exists {
		value = entry.value
	}
	return
}

func (c *LRWCache[K, V]) GetAndRemove(key K) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.data[key]
	if exists {
		value = entry.value
		c.delete(key)
	}
	return
}

func (c *LRWCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delete(key)
}

func (c *LRWCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Clear drops every entry and stops their timers.
func (c *LRWCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		c.delete(key)
	}
}

func (c *LRWCache[K, V]) delete(key K) {
	entry, ok := c.data[key]
	if !ok {
		return
	}
	entry.timer.Stop()
	c.order.Remove(entry.elem)
	delete(c.data, key)
}
