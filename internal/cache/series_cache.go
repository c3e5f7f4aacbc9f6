package cache

import (
	"context"
	"time"

	"kline/internal/logger"
	"kline/internal/market"
	"kline/internal/pkg/shard"

	"github.com/shopspring/decimal"
)

const defaultOpTimeout = 500 * time.Millisecond

// Options 控制单次后端调用的超时。
type Options struct {
	OpTimeout time.Duration
}

// SeriesCache 是时间序列缓存：分钟索引（快路径）+ 快照 + 进程内兜底 map。
// 所有方法都不向调用方返回后端错误。
type SeriesCache struct {
	client    Client
	fast      FastPathEncoder
	snapshot  SnapshotEncoder
	fallback  *shard.Map[[]market.PricePoint]
	opTimeout time.Duration
}

func NewSeriesCache(client Client, opts Options) *SeriesCache {
	if client == nil {
		client = NewMemoryClient(0)
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	return &SeriesCache{
		client:    client,
		fallback:  shard.New[[]market.PricePoint](shard.DefaultCount),
		opTimeout: opts.OpTimeout,
	}
}

func (c *SeriesCache) Client() Client { return c.client }

func (c *SeriesCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// GetRange 先查分钟索引；无结果时解码快照（读失败或缺失时改读兜底 map），
// 再按精确 ts 过滤、升序排序并截断。
func (c *SeriesCache) GetRange(ctx context.Context, q market.RangeQuery) market.Series {
	out := market.NewSeries(q.StockCode, q.MarketID)
	if q.Empty() {
		return out
	}
	if pts := c.readMinuteIndex(ctx, q); len(pts) > 0 {
		out.Points = pts
		return out
	}
	out.Points = market.Select(c.readSnapshot(ctx, q.StockCode, q.MarketID), q)
	return out
}

// readMinuteIndex 每个分钟 score 只保留一个点（后端最后返回的成员），
// limit 作用于合并后的点数，因此向后端请求时不带 limit。
func (c *SeriesCache) readMinuteIndex(ctx context.Context, q market.RangeQuery) []market.PricePoint {
	key := MinuteIndexKey(q.StockCode, q.MarketID)
	opCtx, cancel := c.withTimeout(ctx)
	members, err := c.client.ZRangeByScore(opCtx, key, c.fast.Range(q), -1)
	cancel()
	if err != nil {
		logger.Debugf("cache: minute index %s unavailable: %v", key, err)
		return nil
	}
	out := make([]market.PricePoint, 0, len(members))
	for _, m := range members {
		p, ok := c.fast.Decode(m)
		if !ok {
			logger.Debugf("cache: skip member %q in %s", m.Member, key)
			continue
		}
		if n := len(out); n > 0 && out[n-1].Ts == p.Ts {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	if q.Limit != nil && len(out) > *q.Limit {
		out = out[:*q.Limit]
	}
	return out
}

func (c *SeriesCache) readSnapshot(ctx context.Context, stockCode, marketID string) []market.PricePoint {
	key := SnapshotKey(stockCode, marketID)
	opCtx, cancel := c.withTimeout(ctx)
	raw, found, err := c.client.Get(opCtx, key)
	cancel()
	if err != nil || !found {
		if err != nil {
			logger.Debugf("cache: snapshot %s unavailable, using fallback: %v", key, err)
		}
		return c.readFallback(key)
	}
	return c.snapshot.Decode(raw)
}

func (c *SeriesCache) readFallback(key string) []market.PricePoint {
	var out []market.PricePoint
	c.fallback.Load(key, func(cur []market.PricePoint, ok bool) {
		if ok && len(cur) > 0 {
			out = make([]market.PricePoint, len(cur))
			copy(out, cur)
		}
	})
	return out
}

// PutBatch 用整批点替换快照；后端失败时写入兜底 map。ttl<=0 表示不过期。
func (c *SeriesCache) PutBatch(ctx context.Context, s market.Series, ttl time.Duration) {
	if !s.HasKey() {
		return
	}
	key := SnapshotKey(s.StockCode, s.MarketID)
	raw, err := c.snapshot.Encode(s.Points)
	if err != nil {
		logger.Warnf("cache: encode snapshot %s failed: %v", key, err)
		c.storeFallback(key, s.Points)
		return
	}
	opCtx, cancel := c.withTimeout(ctx)
	err = c.client.Set(opCtx, key, raw, ttl)
	cancel()
	if err != nil {
		logger.Debugf("cache: snapshot %s write failed, using fallback: %v", key, err)
		c.storeFallback(key, s.Points)
		return
	}
	c.fallback.Delete(key)
}

func (c *SeriesCache) storeFallback(key string, points []market.PricePoint) {
	cp := make([]market.PricePoint, len(points))
	copy(cp, points)
	c.fallback.Store(key, cp)
}

// WriteTick 把单个价格写入分钟索引；key 为空或价格缺失时什么都不做。
func (c *SeriesCache) WriteTick(ctx context.Context, stockCode, marketID string, ts int64, price decimal.NullDecimal) {
	if !market.ValidKey(stockCode, marketID) || !price.Valid {
		return
	}
	key := MinuteIndexKey(stockCode, marketID)
	opCtx, cancel := c.withTimeout(ctx)
	err := c.client.ZAdd(opCtx, key, c.fast.Score(ts), c.fast.Member(price.Decimal))
	cancel()
	if err != nil {
		logger.Warnf("cache: minute index %s write failed: %v", key, err)
	}
}

// CheckReport 是缓存诊断结果。
type CheckReport struct {
	MinuteIndexKey string             `json:"minuteIndexKey"`
	SnapshotKey    string             `json:"snapshotKey"`
	DataCount      int                `json:"dataCount"`
	HasData        bool               `json:"hasData"`
	FirstRecord    *market.PricePoint `json:"firstRecord,omitempty"`
	LastRecord     *market.PricePoint `json:"lastRecord,omitempty"`
	Backend        string             `json:"backend"`
	Healthy        bool               `json:"healthy"`
}

const checkLimit = 20

// Check 读取最多 20 条数据并报告后端健康状况。
func (c *SeriesCache) Check(ctx context.Context, stockCode, marketID string) CheckReport {
	rep := CheckReport{
		MinuteIndexKey: MinuteIndexKey(stockCode, marketID),
		SnapshotKey:    SnapshotKey(stockCode, marketID),
		Backend:        backendName(c.client),
	}
	opCtx, cancel := c.withTimeout(ctx)
	rep.Healthy = c.client.Ping(opCtx) == nil
	cancel()

	s := c.GetRange(ctx, market.RangeQuery{StockCode: stockCode, MarketID: marketID, Limit: market.Int(checkLimit)})
	rep.DataCount = s.Len()
	rep.HasData = !s.Empty()
	if rep.HasData {
		first, last := s.Points[0], s.Points[len(s.Points)-1]
		rep.FirstRecord, rep.LastRecord = &first, &last
	}
	return rep
}

func backendName(c Client) string {
	switch cl := c.(type) {
	case *MemoryClient:
		return "memory"
	case *RedisClient:
		return "redis(" + cl.BreakerState() + ")"
	default:
		return "custom"
	}
}
