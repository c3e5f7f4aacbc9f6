package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"kline/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenClient 模拟后端完全不可用。
type brokenClient struct {
	calls atomic.Int32
}

func (b *brokenClient) ZAdd(context.Context, string, float64, string) error {
	b.calls.Add(1)
	return ErrUnavailable
}

func (b *brokenClient) ZRangeByScore(context.Context, string, ScoreRange, int) ([]ScoredMember, error) {
	b.calls.Add(1)
	return nil, ErrUnavailable
}

func (b *brokenClient) Get(context.Context, string) (string, bool, error) {
	b.calls.Add(1)
	return "", false, ErrUnavailable
}

func (b *brokenClient) Set(context.Context, string, string, time.Duration) error {
	b.calls.Add(1)
	return ErrUnavailable
}

func (b *brokenClient) Ping(context.Context) error { return ErrUnavailable }

func (b *brokenClient) Close() error { return nil }

func price(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func pt(ts int64, p string) market.PricePoint {
	return market.SinglePrice(ts, decimal.RequireFromString(p))
}

func rangeQuery(code, mkt string, start, end *int64, limit *int) market.RangeQuery {
	return market.RangeQuery{StockCode: code, MarketID: mkt, Start: start, End: end, Limit: limit}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "series:1m:33:300000", MinuteIndexKey("300000", "33"))
	assert.Equal(t, "series:data:300000:33", SnapshotKey("300000", "33"))
}

func TestFastPathEncoder(t *testing.T) {
	var enc FastPathEncoder
	assert.Equal(t, float64(26297700), enc.Score(1577862000))
	assert.Equal(t, float64(26297700), enc.Score(1577862059))
	assert.Equal(t, "86.960", enc.Member(decimal.RequireFromString("86.960")))

	p, ok := enc.Decode(ScoredMember{Member: "86.96", Score: 26297700})
	require.True(t, ok)
	assert.Equal(t, int64(1577862000), p.Ts)
	assert.True(t, p.Open.Equal(p.Close))
	assert.True(t, p.High.Equal(p.Low))
	assert.Equal(t, int64(0), p.Vol)

	_, ok = enc.Decode(ScoredMember{Member: "not-a-price", Score: 1})
	assert.False(t, ok)

	rng := enc.Range(rangeQuery("a", "b", market.Int64(119), market.Int64(-1), nil))
	assert.Equal(t, float64(1), *rng.Min)
	assert.Equal(t, float64(-1), *rng.Max)
	assert.Nil(t, enc.Range(rangeQuery("a", "b", nil, nil, nil)).Min)
}

func TestSnapshotEncoder(t *testing.T) {
	var enc SnapshotEncoder

	raw, err := enc.Encode([]market.PricePoint{
		{Ts: 60, Open: decimal.RequireFromString("1.10"), High: decimal.RequireFromString("1.30"), Low: decimal.RequireFromString("1.00"), Close: decimal.RequireFromString("1.20"), Vol: 5},
	})
	require.NoError(t, err)
	got := enc.Decode(raw)
	require.Len(t, got, 1)
	assert.Equal(t, "1.30", market.PlainString(got[0].High))
	assert.Equal(t, int64(5), got[0].Vol)

	empty, err := enc.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)

	t.Run("null ts entries dropped", func(t *testing.T) {
		got := enc.Decode(`[{"ts":null,"open":1,"high":1,"low":1,"close":1,"vol":0},{"ts":120,"open":2,"high":2,"low":2,"close":2,"vol":0}]`)
		require.Len(t, got, 1)
		assert.Equal(t, int64(120), got[0].Ts)
	})

	t.Run("tick record array", func(t *testing.T) {
		got := enc.Decode(`[
			{"stockCode":"300033","marketId":"33","price":"86.96","date":"20200101","time":"0700"},
			{"stockCode":"300033","marketId":"33","price":87.1,"date":"20200101","time":"0701"},
			{"stockCode":"300033","marketId":"33","price":"1","date":"bad","time":"0702"},
			{"stockCode":"300033","marketId":"33","price":"1"}
		]`)
		require.Len(t, got, 2)
		assert.Equal(t, int64(1577862000), got[0].Ts)
		assert.Equal(t, int64(1577862060), got[1].Ts)
		assert.Equal(t, "87.1", market.PlainString(got[1].Close))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Empty(t, enc.Decode(`{"ts":1}`))
		assert.Empty(t, enc.Decode(`not json`))
		assert.Empty(t, enc.Decode(`[]`))
		assert.Empty(t, enc.Decode(`[1,2,3]`))
	})
}

func TestMemoryClientSemantics(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(0)
	defer c.Close()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.ZAdd(ctx, "z", 3, "c"))
	require.NoError(t, c.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, c.ZAdd(ctx, "z", 2, "b"))
	require.NoError(t, c.ZAdd(ctx, "z", 4, "a"))

	all, err := c.ZRangeByScore(ctx, "z", ScoreRange{}, -1)
	require.NoError(t, err)
	assert.Equal(t, []ScoredMember{{"b", 2}, {"c", 3}, {"a", 4}}, all)

	two := 2.0
	bounded, err := c.ZRangeByScore(ctx, "z", ScoreRange{Min: &two}, 1)
	require.NoError(t, err)
	assert.Equal(t, []ScoredMember{{"b", 2}}, bounded)

	none, err := c.ZRangeByScore(ctx, "z", ScoreRange{}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, c.Set(ctx, "s", "v", time.Second))
	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	v, ok, err := c.Get(ctx, "s")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.Get(ctx, "s")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)

	require.NoError(t, c.Set(ctx, "s2", "v", time.Second))
	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, c.sweep())
}

func TestSeriesCacheFastPath(t *testing.T) {
	ctx := context.Background()
	c := NewSeriesCache(NewMemoryClient(0), Options{})

	c.WriteTick(ctx, "300000", "33", 1577862000, price("86.96"))
	c.WriteTick(ctx, "300000", "33", 1577862060, price("87.00"))
	c.WriteTick(ctx, "", "33", 1577862000, price("1"))
	c.WriteTick(ctx, "300000", "33", 1577862120, decimal.NullDecimal{})

	s := c.GetRange(ctx, rangeQuery("300000", "33", market.Int64(1577862000), market.Int64(1577862000), nil))
	require.Len(t, s.Points, 1)
	p := s.Points[0]
	assert.Equal(t, int64(1577862000), p.Ts)
	assert.Equal(t, "86.96", market.PlainString(p.Close))
	assert.True(t, p.Open.Equal(p.High))
	assert.Equal(t, int64(0), p.Vol)

	all := c.GetRange(ctx, rangeQuery("300000", "33", nil, nil, nil))
	assert.Len(t, all.Points, 2)

	limited := c.GetRange(ctx, rangeQuery("300000", "33", nil, nil, market.Int(1)))
	assert.Len(t, limited.Points, 1)
}

func TestSeriesCacheMinuteBucketing(t *testing.T) {
	ctx := context.Background()
	c := NewSeriesCache(NewMemoryClient(0), Options{})

	c.WriteTick(ctx, "A", "1", 125, price("5"))
	s := c.GetRange(ctx, rangeQuery("A", "1", market.Int64(120), market.Int64(179), nil))
	require.Len(t, s.Points, 1)
	assert.Equal(t, int64(120), s.Points[0].Ts)

	// a second price ten seconds later lands in the same minute
	c.WriteTick(ctx, "A", "1", 135, price("6"))
	s = c.GetRange(ctx, rangeQuery("A", "1", market.Int64(120), market.Int64(179), nil))
	require.Len(t, s.Points, 1, "one point per minute on the fast path")
	assert.Equal(t, int64(120), s.Points[0].Ts)
	assert.Contains(t, []string{"5", "6"}, market.PlainString(s.Points[0].Close))
}

func TestSeriesCacheMinuteLimitCountsBuckets(t *testing.T) {
	ctx := context.Background()
	c := NewSeriesCache(NewMemoryClient(0), Options{})

	c.WriteTick(ctx, "A", "1", 60, price("1"))
	c.WriteTick(ctx, "A", "1", 70, price("2"))
	c.WriteTick(ctx, "A", "1", 80, price("3"))
	c.WriteTick(ctx, "A", "1", 125, price("4"))
	c.WriteTick(ctx, "A", "1", 190, price("5"))

	s := c.GetRange(ctx, rangeQuery("A", "1", nil, nil, market.Int(2)))
	require.Len(t, s.Points, 2)
	assert.Equal(t, int64(60), s.Points[0].Ts)
	assert.Equal(t, int64(120), s.Points[1].Ts)

	all := c.GetRange(ctx, rangeQuery("A", "1", nil, nil, nil))
	require.Len(t, all.Points, 3)
	for i := 1; i < len(all.Points); i++ {
		assert.Less(t, all.Points[i-1].Ts, all.Points[i].Ts)
	}
}

func TestSeriesCacheSnapshotPath(t *testing.T) {
	ctx := context.Background()
	c := NewSeriesCache(NewMemoryClient(0), Options{})

	c.PutBatch(ctx, market.NewSeries("300033", "33", pt(180, "3"), pt(60, "1"), pt(120, "2")), 0)

	s := c.GetRange(ctx, rangeQuery("300033", "33", nil, nil, nil))
	require.Len(t, s.Points, 3)
	assert.Equal(t, int64(60), s.Points[0].Ts)
	assert.Equal(t, int64(180), s.Points[2].Ts)

	tests := []struct {
		name  string
		q     market.RangeQuery
		count int
	}{
		{"window", rangeQuery("300033", "33", market.Int64(100), market.Int64(180), nil), 2},
		{"limit", rangeQuery("300033", "33", nil, nil, market.Int(2)), 2},
		{"limit zero", rangeQuery("300033", "33", nil, nil, market.Int(0)), 0},
		{"negative limit", rangeQuery("300033", "33", nil, nil, market.Int(-3)), 0},
		{"inverted", rangeQuery("300033", "33", market.Int64(180), market.Int64(60), nil), 0},
		{"blank", rangeQuery("", "33", nil, nil, nil), 0},
		{"unknown key", rangeQuery("NONE", "0", market.Int64(4000), market.Int64(5000), nil), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, c.GetRange(ctx, tc.q).Points, tc.count)
		})
	}

	c.PutBatch(ctx, market.NewSeries("300033", "33", pt(240, "4")), time.Minute)
	s = c.GetRange(ctx, rangeQuery("300033", "33", nil, nil, nil))
	require.Len(t, s.Points, 1, "snapshot is replaced")
	assert.Equal(t, int64(240), s.Points[0].Ts)
}

func TestSeriesCacheFallbackOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	backend := &brokenClient{}
	c := NewSeriesCache(backend, Options{OpTimeout: 50 * time.Millisecond})

	c.PutBatch(ctx, market.NewSeries("300033", "33", pt(120, "2"), pt(60, "1")), time.Minute)
	c.WriteTick(ctx, "300033", "33", 60, price("1"))

	s := c.GetRange(ctx, rangeQuery("300033", "33", nil, nil, nil))
	require.Len(t, s.Points, 2)
	assert.Equal(t, int64(60), s.Points[0].Ts)
	assert.Greater(t, backend.calls.Load(), int32(0))

	rep := c.Check(ctx, "300033", "33")
	assert.False(t, rep.Healthy)
	assert.True(t, rep.HasData)
	assert.Equal(t, 2, rep.DataCount)
	assert.Equal(t, "custom", rep.Backend)
}

func TestSeriesCacheRedisUnreachable(t *testing.T) {
	ctx := context.Background()
	client := NewRedisClient(RedisOptions{
		Addr:             "127.0.0.1:1",
		DialTimeout:      50 * time.Millisecond,
		ReadTimeout:      50 * time.Millisecond,
		WriteTimeout:     50 * time.Millisecond,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	})
	defer client.Close()
	c := NewSeriesCache(client, Options{OpTimeout: 200 * time.Millisecond})

	c.PutBatch(ctx, market.NewSeries("300033", "33", pt(60, "1.50")), time.Minute)
	c.WriteTick(ctx, "300033", "33", 60, price("1.50"))

	s := c.GetRange(ctx, rangeQuery("300033", "33", nil, nil, nil))
	require.Len(t, s.Points, 1)
	assert.Equal(t, "1.50", market.PlainString(s.Points[0].Close))

	_, _, err := client.Get(ctx, "anything")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "OPEN", client.BreakerState())
}

func TestSeriesCacheCheck(t *testing.T) {
	ctx := context.Background()
	c := NewSeriesCache(NewMemoryClient(0), Options{})
	for i := int64(1); i <= 30; i++ {
		c.WriteTick(ctx, "300033", "33", i*60, price(decimal.NewFromInt(i).String()))
	}
	rep := c.Check(ctx, "300033", "33")
	assert.True(t, rep.Healthy)
	assert.Equal(t, "memory", rep.Backend)
	assert.Equal(t, 20, rep.DataCount)
	require.NotNil(t, rep.FirstRecord)
	assert.Equal(t, int64(60), rep.FirstRecord.Ts)
	assert.Equal(t, int64(1200), rep.LastRecord.Ts)
}
