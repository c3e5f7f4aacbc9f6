package repository

import (
	"context"
	"time"

	"kline/internal/logger"
	"kline/internal/market"
	"kline/internal/store"
)

const (
	DefaultUpsertTTL     = 900 * time.Second
	DefaultRepopulateTTL = 900 * time.Second
)

// SeriesCache 是 Repository 依赖的缓存能力。
type SeriesCache interface {
	GetRange(ctx context.Context, q market.RangeQuery) market.Series
	PutBatch(ctx context.Context, s market.Series, ttl time.Duration)
}

type Options struct {
	UpsertTTL     time.Duration
	RepopulateTTL time.Duration
}

// Repository 协调缓存与持久层：读走 cache-aside，写先落库再刷缓存。
type Repository struct {
	cache         SeriesCache
	store         store.Store
	upsertTTL     time.Duration
	repopulateTTL time.Duration
}

func New(cache SeriesCache, st store.Store, opts Options) *Repository {
	if opts.UpsertTTL == 0 {
		opts.UpsertTTL = DefaultUpsertTTL
	}
	if opts.RepopulateTTL == 0 {
		opts.RepopulateTTL = DefaultRepopulateTTL
	}
	return &Repository{
		cache:         cache,
		store:         st,
		upsertTTL:     opts.UpsertTTL,
		repopulateTTL: opts.RepopulateTTL,
	}
}

// FindRange 缓存命中直接返回；未命中读库，非空结果回填缓存。从不返回错误。
func (r *Repository) FindRange(ctx context.Context, q market.RangeQuery) market.Series {
	out := market.NewSeries(q.StockCode, q.MarketID)
	if q.Empty() {
		return out
	}
	if hit := r.cache.GetRange(ctx, q); !hit.Empty() {
		return hit
	}
	pts, err := r.store.SelectRange(ctx, q)
	if err != nil {
		logger.Warnf("repository: store read %s/%s failed: %v", q.StockCode, q.MarketID, err)
		return out
	}
	if len(pts) == 0 {
		return out
	}
	out.Points = pts
	r.cache.PutBatch(ctx, out, r.repopulateTTL)
	return out
}

// UpsertBatch 追加写入持久层后刷新快照。持久层错误原样返回，缓存写入不会失败。
func (r *Repository) UpsertBatch(ctx context.Context, s market.Series) error {
	if !s.HasKey() {
		return nil
	}
	if _, err := r.store.InsertBatch(ctx, s.StockCode, s.MarketID, s.Points); err != nil {
		return err
	}
	r.cache.PutBatch(ctx, s, r.upsertTTL)
	return nil
}
