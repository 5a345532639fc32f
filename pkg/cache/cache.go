// Package cache 小型 TTL 缓存，用于资产目录这类读多写少的快照。
package cache

import (
	"sync"
	"time"
)

// TTLCache 带过期时间的并发安全缓存。过期项在访问时惰性剔除。
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]item[V]
	defaultTTL time.Duration
}

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func NewTTLCache[K comparable, V any](defaultTTL time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		items:      make(map[K]item[V]),
		defaultTTL: defaultTTL,
	}
}

// Get 读取缓存值；过期或不存在时返回零值和 false。
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(it.expiresAt) {
		if ok {
			c.Delete(key)
		}
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set 写入缓存值，ttl <= 0 时用默认 TTL。
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete 删除缓存项。
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Invalidate 清空全部缓存项（账本变更后调用）。
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	c.items = make(map[K]item[V])
	c.mu.Unlock()
}
