package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore 测试用内存存储, 实现完整 Store 契约
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]memoryValue
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	streams map[string][]StreamEntry
	cursors map[string]int // "stream/group" → 已投递的下标
	nextID  int64
	now     func() time.Time
}

type memoryValue struct {
	data      string
	expiresAt time.Time // 零值 = 不过期
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]memoryValue),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
		streams: make(map[string][]StreamEntry),
		cursors: make(map[string]int),
		now:     time.Now,
	}
}

// SetClock 固定时钟, 仅测试使用
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) getLocked(key string) (string, bool) {
	v, ok := s.values[key]
	if !ok {
		return "", false
	}
	if !v.expiresAt.IsZero() && s.now().After(v.expiresAt) {
		delete(s.values, key)
		return "", false
	}
	return v.data, true
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.getLocked(key)
	if !ok {
		return "", ErrNotFound
	}
	return data, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = memoryValue{data: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetGetPrevious(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.getLocked(key)
	s.values[key] = memoryValue{data: value, expiresAt: s.expiry(ttl)}
	if !ok {
		return "", ErrNotFound
	}
	return prev, nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	delete(s.sets, key)
	delete(s.zsets, key)
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key]; ok {
		v.expiresAt = s.expiry(ttl)
		s.values[key] = v
	}
	// 集合类键不跟踪过期, 测试不依赖
	return nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		return nil, nil
	}
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zset, ok := s.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	zset[member] = score
	return nil
}

func (s *MemoryStore) ZRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zset, ok := s.zsets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(zset, m)
	}
	return nil
}

func (s *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	zset, ok := s.zsets[key]
	if !ok {
		return nil, nil
	}

	type zmember struct {
		member string
		score  float64
	}
	members := make([]zmember, 0, len(zset))
	for m, score := range zset {
		members = append(members, zmember{m, score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score < members[j].score
		}
		return members[i].member < members[j].member
	})

	n := int64(len(members))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}

	result := make([]string, 0, stop-start+1)
	for _, m := range members[start : stop+1] {
		result = append(result, m.member)
	}
	return result, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) XAdd(ctx context.Context, stream string, values map[string]string, maxLen int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	entry := StreamEntry{ID: fmt.Sprintf("%d-0", s.nextID), Values: copied}
	s.streams[stream] = append(s.streams[stream], entry)

	if maxLen > 0 && int64(len(s.streams[stream])) > maxLen {
		trimmed := int64(len(s.streams[stream])) - maxLen
		s.streams[stream] = s.streams[stream][trimmed:]
		for _, cursorKey := range s.groupKeys(stream) {
			s.cursors[cursorKey] -= int(trimmed)
			if s.cursors[cursorKey] < 0 {
				s.cursors[cursorKey] = 0
			}
		}
	}
	return entry.ID, nil
}

func (s *MemoryStore) groupKeys(stream string) []string {
	prefix := stream + "/"
	var keys []string
	for k := range s.cursors {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s *MemoryStore) XLen(ctx context.Context, stream string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.streams[stream])), nil
}

func (s *MemoryStore) EnsureGroup(ctx context.Context, stream, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stream + "/" + group
	if _, ok := s.cursors[key]; !ok {
		s.cursors[key] = 0
	}
	return nil
}

func (s *MemoryStore) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stream + "/" + group
	cursor := s.cursors[key]
	entries := s.streams[stream]
	if cursor >= len(entries) {
		return nil, nil
	}

	end := len(entries)
	if count > 0 && cursor+int(count) < end {
		end = cursor + int(count)
	}
	result := append([]StreamEntry(nil), entries[cursor:end]...)
	s.cursors[key] = end
	return result, nil
}

func (s *MemoryStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	// 内存实现不跟踪 pending 列表
	return nil
}

// StreamEntries 返回某个流的全部记录, 仅测试使用
func (s *MemoryStore) StreamEntries(stream string) []StreamEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]StreamEntry(nil), s.streams[stream]...)
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}
