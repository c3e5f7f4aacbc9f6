package names

import (
	"context"
	"time"

	"kline/internal/logger"
	"kline/internal/market"
)

const DefaultTTL = time.Hour

// Resolver 依次查缓存、各个 Service，查到后写回缓存。
type Resolver struct {
	cache    *Cache
	services []Service
	ttl      time.Duration
}

func NewResolver(c *Cache, ttl time.Duration, services ...Service) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	active := make([]Service, 0, len(services))
	for _, s := range services {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Resolver{cache: c, services: active, ttl: ttl}
}

// Resolve 全部来源都查不到时返回占位名称（不写缓存）。
func (r *Resolver) Resolve(ctx context.Context, stockCode, marketID string) string {
	if !market.ValidKey(stockCode, marketID) {
		return ""
	}
	if r.cache != nil {
		if name := r.cache.Get(ctx, stockCode, marketID); name != "" {
			return name
		}
	}
	for _, svc := range r.services {
		name, err := svc.FetchName(ctx, stockCode, marketID)
		if err != nil {
			logger.Debugf("names: lookup %s/%s failed: %v", stockCode, marketID, err)
			continue
		}
		if name == "" {
			continue
		}
		if r.cache != nil {
			r.cache.Set(ctx, stockCode, marketID, name, r.ttl)
		}
		return name
	}
	return Placeholder(stockCode, marketID)
}
