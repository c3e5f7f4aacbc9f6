package names

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"kline/internal/cache"
	"kline/internal/logger"
	"kline/internal/pkg/shard"

	"github.com/tidwall/gjson"
)

const defaultOpTimeout = 500 * time.Millisecond

type nameEntry struct {
	name     string
	expireAt time.Time
}

// Cache 缓存 (stockCode, marketId) → 股票名称，后端失败时退回进程内 map。
type Cache struct {
	client    cache.Client
	fallback  *shard.Map[nameEntry]
	opTimeout time.Duration
	now       func() time.Time
}

func NewCache(client cache.Client, opTimeout time.Duration) *Cache {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Cache{
		client:    client,
		fallback:  shard.New[nameEntry](8),
		opTimeout: opTimeout,
		now:       time.Now,
	}
}

// Key 格式：name:{stockCode}:{marketId}
func Key(stockCode, marketID string) string {
	return "name:" + strings.TrimSpace(stockCode) + ":" + strings.TrimSpace(marketID)
}

type cachedName struct {
	StockCode string `json:"stockCode"`
	MarketID  string `json:"marketId"`
	StockName string `json:"stockname"`
}

// Get 未命中返回空串。
func (c *Cache) Get(ctx context.Context, stockCode, marketID string) string {
	key := Key(stockCode, marketID)
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	raw, found, err := c.client.Get(opCtx, key)
	cancel()
	if err != nil {
		logger.Debugf("names: cache read %s failed, using fallback: %v", key, err)
		return c.fallbackGet(key)
	}
	if !found {
		return ""
	}
	return parseName(raw)
}

func (c *Cache) Set(ctx context.Context, stockCode, marketID, name string, ttl time.Duration) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := Key(stockCode, marketID)
	body, err := json.Marshal(cachedName{StockCode: stockCode, MarketID: marketID, StockName: name})
	if err != nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	err = c.client.Set(opCtx, key, string(body), ttl)
	cancel()
	if err != nil {
		logger.Debugf("names: cache write %s failed, using fallback: %v", key, err)
		entry := nameEntry{name: name}
		if ttl > 0 {
			entry.expireAt = c.now().Add(ttl)
		}
		c.fallback.Store(key, entry)
	}
}

func (c *Cache) fallbackGet(key string) string {
	var out string
	c.fallback.Load(key, func(e nameEntry, ok bool) {
		if ok && (e.expireAt.IsZero() || c.now().Before(e.expireAt)) {
			out = e.name
		}
	})
	return out
}

// parseName 兼容 stockname / stockName / name 三种字段，非 JSON 时按原文返回。
func parseName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !gjson.Valid(raw) {
		return raw
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		if doc.Type == gjson.String {
			return strings.TrimSpace(doc.Str)
		}
		return raw
	}
	for _, field := range []string{"stockname", "stockName", "name"} {
		if v := strings.TrimSpace(doc.Get(field).String()); v != "" {
			return v
		}
	}
	return raw
}
