package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 键不存在
var ErrNotFound = errors.New("key not found")

// StreamEntry 流中的一条记录
type StreamEntry struct {
	ID     string
	Values map[string]string
}

// KeyValueStore 键值存储抽象, 值为调用方编码的不透明字符串
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetGetPrevious 原子地写入新值并返回旧值, 旧值不存在时返回 ErrNotFound
	// 这是 "读旧值-比较-写新值" 模式的原子原语
	SetGetPrevious(ctx context.Context, key, value string, ttl time.Duration) (string, error)

	Del(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	Ping(ctx context.Context) error
}

// StreamStore 追加流抽象, 带消费者组读取
type StreamStore interface {
	// XAdd 追加一条记录, maxLen > 0 时按近似最大长度裁剪
	XAdd(ctx context.Context, stream string, values map[string]string, maxLen int64) (string, error)
	XLen(ctx context.Context, stream string) (int64, error)

	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// Store 完整存储契约
type Store interface {
	KeyValueStore
	StreamStore
}
