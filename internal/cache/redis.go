package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kline/internal/logger"
	"kline/internal/pkg/circuit"

	"github.com/redis/go-redis/v9"
)

// RedisOptions 描述 Redis 连接与熔断参数。
type RedisOptions struct {
	Addr             string
	Password         string
	DB               int
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PoolSize         int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// RedisClient 通过 go-redis 访问外部缓存；熔断打开时直接返回 ErrUnavailable。
type RedisClient struct {
	rdb     redis.UniversalClient
	breaker *circuit.Breaker
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient 不做连通性检查，Redis 暂时不可用时服务仍可启动并走降级路径。
func NewRedisClient(opts RedisOptions) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MaxRetries:   -1,
	})
	return newRedisClient(rdb, opts.BreakerThreshold, opts.BreakerCooldown)
}

func newRedisClient(rdb redis.UniversalClient, threshold int, cooldown time.Duration) *RedisClient {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	br := circuit.New("redis", threshold, cooldown)
	br.SetStateChangeHandler(func(name string, from, to circuit.State) {
		logger.Warnf("cache: %s breaker %s -> %s", name, from, to)
	})
	return &RedisClient{rdb: rdb, breaker: br}
}

func (c *RedisClient) do(op string, fn func() error) error {
	err := c.breaker.Do(fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, circuit.ErrOpen) {
		return fmt.Errorf("redis %s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("redis %s: %w: %v", op, ErrUnavailable, err)
}

func (c *RedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.do("zadd", func() error {
		return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
}

func (c *RedisClient) ZRangeByScore(ctx context.Context, key string, rng ScoreRange, limit int) ([]ScoredMember, error) {
	if limit == 0 {
		return nil, nil
	}
	min, max := rng.bounds()
	by := &redis.ZRangeBy{Min: min, Max: max}
	if limit > 0 {
		by.Count = int64(limit)
	}
	var zs []redis.Z
	err := c.do("zrangebyscore", func() error {
		var err error
		zs, err = c.rdb.ZRangeByScoreWithScores(ctx, key, by).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := c.do("get", func() error {
		v, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return val, found, nil
}

func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.do("set", func() error {
		return c.rdb.Set(ctx, key, value, ttl).Err()
	})
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.do("ping", func() error { return c.rdb.Ping(ctx).Err() })
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// BreakerState 用于诊断接口展示。
func (c *RedisClient) BreakerState() string {
	return c.breaker.State().String()
}
