package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"kline/internal/logger"
	"kline/internal/pkg/shard"
)

type stringEntry struct {
	value    string
	expireAt time.Time
}

func (e stringEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryClient 是进程内的 Client 实现，语义与 Redis 的 ZSET/STRING 保持一致。
type MemoryClient struct {
	strings *shard.Map[stringEntry]
	zsets   *shard.Map[map[string]float64]
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient 创建内存客户端；janitor>0 时后台定期清理过期 key。
func NewMemoryClient(janitor time.Duration) *MemoryClient {
	c := &MemoryClient{
		strings: shard.New[stringEntry](shard.DefaultCount),
		zsets:   shard.New[map[string]float64](shard.DefaultCount),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if janitor > 0 {
		go c.janitor(janitor)
	} else {
		close(c.done)
	}
	return c
}

func (c *MemoryClient) janitor(every time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.sweep(); n > 0 {
				logger.Debugf("memory cache: evicted %d expired keys", n)
			}
		}
	}
}

func (c *MemoryClient) sweep() int {
	now := c.now()
	return c.strings.Sweep(func(_ string, e stringEntry) bool { return e.expired(now) })
}

// ZAdd 与 Redis 相同：同一 member 再次写入时更新 score。
func (c *MemoryClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	c.zsets.Update(key, func(cur map[string]float64, ok bool) (map[string]float64, bool) {
		if !ok || cur == nil {
			cur = make(map[string]float64)
		}
		cur[member] = score
		return cur, true
	})
	return nil
}

func (c *MemoryClient) ZRangeByScore(ctx context.Context, key string, rng ScoreRange, limit int) ([]ScoredMember, error) {
	if limit == 0 {
		return nil, nil
	}
	var out []ScoredMember
	c.zsets.Load(key, func(set map[string]float64, ok bool) {
		if !ok {
			return
		}
		for member, score := range set {
			if rng.contains(score) {
				out = append(out, ScoredMember{Member: member, Score: score})
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *MemoryClient) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		entry stringEntry
		found bool
	)
	c.strings.Load(key, func(e stringEntry, ok bool) { entry, found = e, ok })
	if !found {
		return "", false, nil
	}
	if entry.expired(c.now()) {
		c.strings.Update(key, func(cur stringEntry, ok bool) (stringEntry, bool) {
			return cur, ok && !cur.expired(c.now())
		})
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := stringEntry{value: value}
	if ttl > 0 {
		entry.expireAt = c.now().Add(ttl)
	}
	c.strings.Store(key, entry)
	return nil
}

func (c *MemoryClient) Ping(ctx context.Context) error { return nil }

func (c *MemoryClient) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}
