// Package ratelimit 令牌桶限流，用于结算入口的请求限速。
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶限流器。
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int       // 桶容量（突发上限）
	tokens     int       // 当前令牌数
	refillRate int       // 每秒补充的令牌数
	lastRefill time.Time // 上次补充时间
}

// NewTokenBucket 创建令牌桶。capacity 为突发上限，refillRate 为每秒补充数。
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate < 1 {
		refillRate = 1
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow 消费一个令牌；桶空时返回 false。
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Remaining 当前剩余令牌数（观测用）。
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// refill 必须在持锁状态下调用。
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens = minInt(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}
}

// PerKey 按 key（通常是用户 ID）维护独立令牌桶的限流器。
// 桶惰性创建；长期不活跃的 key 由 Sweep 回收。
type PerKey struct {
	mu         sync.Mutex
	buckets    map[string]*perKeyBucket
	capacity   int
	refillRate int
}

type perKeyBucket struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewPerKey 创建按 key 限流器，每个 key 的桶参数相同。
func NewPerKey(capacity, refillRate int) *PerKey {
	return &PerKey{
		buckets:    make(map[string]*perKeyBucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Allow 消费 key 对应桶里的一个令牌。
func (p *PerKey) Allow(key string) bool {
	p.mu.Lock()
	b, ok := p.buckets[key]
	if !ok {
		b = &perKeyBucket{bucket: NewTokenBucket(p.capacity, p.refillRate)}
		p.buckets[key] = b
	}
	b.lastSeen = time.Now()
	p.mu.Unlock()

	return b.bucket.Allow()
}

// Sweep 删除 idle 时长内没有请求的桶，返回删除数量。
func (p *PerKey) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for k, b := range p.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(p.buckets, k)
			removed++
		}
	}
	return removed
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
