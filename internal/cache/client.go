package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrUnavailable 表示缓存后端不可用（连接失败或熔断打开）。
var ErrUnavailable = errors.New("cache backend unavailable")

// ScoredMember 是有序集合中的一个成员。
type ScoredMember struct {
	Member string
	Score  float64
}

// ScoreRange 是闭区间；nil 表示 -inf / +inf。
type ScoreRange struct {
	Min *float64
	Max *float64
}

func (r ScoreRange) contains(score float64) bool {
	if r.Min != nil && score < *r.Min {
		return false
	}
	if r.Max != nil && score > *r.Max {
		return false
	}
	return true
}

func (r ScoreRange) bounds() (min, max string) {
	min, max = "-inf", "+inf"
	if r.Min != nil {
		min = strconv.FormatFloat(*r.Min, 'f', -1, 64)
	}
	if r.Max != nil {
		max = strconv.FormatFloat(*r.Max, 'f', -1, 64)
	}
	return min, max
}

// Client 是缓存后端的最小能力集合；实现由配置在构造时选定。
type Client interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRangeByScore 按 score 升序返回；limit<0 不限制，limit==0 返回空。
	ZRangeByScore(ctx context.Context, key string, rng ScoreRange, limit int) ([]ScoredMember, error)
	// Get 返回值及是否存在；key 不存在不是错误。
	Get(ctx context.Context, key string) (string, bool, error)
	// Set 写入字符串值，ttl<=0 表示不过期。
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
