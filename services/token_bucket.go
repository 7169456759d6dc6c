package services

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶限流器, 惰性补充, 并发安全
type TokenBucket struct {
	mu              sync.Mutex
	capacity        float64
	refillPerSecond float64
	tokens          float64
	lastRefillAt    time.Time
}

// NewTokenBucket 创建满桶的令牌桶
// capacity 下限为 1, refillPerSecond 下限为 0
func NewTokenBucket(capacity, refillPerSecond float64, now time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSecond < 0 {
		refillPerSecond = 0
	}
	return &TokenBucket{
		capacity:        capacity,
		refillPerSecond: refillPerSecond,
		tokens:          capacity,
		lastRefillAt:    now,
	}
}

// refillLocked 按流逝时间补充令牌, 封顶 capacity
// lastRefillAt 只在发生正补充时前移, 永不回退
func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefillAt).Seconds()
	if elapsed <= 0 {
		return
	}
	added := elapsed * b.refillPerSecond
	if added <= 0 {
		return
	}
	b.tokens += added
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefillAt = now
}

// Consume 尝试消费 amount 个令牌, 不足时不产生任何变化
func (b *TokenBucket) Consume(amount float64, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(now)
	if amount > b.tokens {
		return false
	}
	b.tokens -= amount
	return true
}

// Available 返回补充后的可用令牌数
func (b *TokenBucket) Available(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(now)
	return b.tokens
}
