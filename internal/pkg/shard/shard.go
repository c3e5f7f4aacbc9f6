package shard

import "sync"

const DefaultCount = 32

// Map 是按 key 做 FNV 分片的并发 map，每个分片一把读写锁。
type Map[V any] struct {
	shards []bucket[V]
}

type bucket[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

func New[V any](count int) *Map[V] {
	if count <= 0 {
		count = DefaultCount
	}
	m := &Map[V]{shards: make([]bucket[V], count)}
	for i := range m.shards {
		m.shards[i].data = make(map[string]V)
	}
	return m
}

func (m *Map[V]) bucketFor(key string) *bucket[V] {
	return &m.shards[Index(key, len(m.shards))]
}

// Load 在读锁下调用 fn；fn 内不得保留 v 中可变部分的引用。
func (m *Map[V]) Load(key string, fn func(v V, ok bool)) {
	b := m.bucketFor(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	fn(v, ok)
}

// Update 在写锁下计算新值；keep=false 时删除该 key。
func (m *Map[V]) Update(key string, fn func(cur V, ok bool) (next V, keep bool)) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.data[key]
	next, keep := fn(cur, ok)
	if !keep {
		delete(b.data, key)
		return
	}
	b.data[key] = next
}

func (m *Map[V]) Store(key string, v V) {
	m.Update(key, func(V, bool) (V, bool) { return v, true })
}

func (m *Map[V]) Delete(key string) {
	b := m.bucketFor(key)
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
}

// Sweep 逐个分片加写锁，删除 drop 返回 true 的条目，返回删除数量。
func (m *Map[V]) Sweep(drop func(key string, v V) bool) int {
	removed := 0
	for i := range m.shards {
		b := &m.shards[i]
		b.mu.Lock()
		for k, v := range b.data {
			if drop(k, v) {
				delete(b.data, k)
				removed++
			}
		}
		b.mu.Unlock()
	}
	return removed
}

func (m *Map[V]) Len() int {
	n := 0
	for i := range m.shards {
		b := &m.shards[i]
		b.mu.RLock()
		n += len(b.data)
		b.mu.RUnlock()
	}
	return n
}

// Index 返回 key 所在分片下标（FNV-1a）。
func Index(key string, count int) int {
	if count <= 1 {
		return 0
	}
	return int(hashKey(key) % uint32(count))
}

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
