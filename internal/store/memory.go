package store

import (
	"context"
	"strings"

	"kline/internal/market"
	"kline/internal/pkg/shard"
)

// MemoryStore 按 (stockCode, marketId) 分片保存点序列，读时先拷贝快照再过滤。
type MemoryStore struct {
	data *shard.Map[[]market.PricePoint]
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return newMemoryStore(shard.DefaultCount)
}

func newMemoryStore(shards int) *MemoryStore {
	return &MemoryStore{data: shard.New[[]market.PricePoint](shards)}
}

func key(stockCode, marketID string) string {
	return strings.TrimSpace(stockCode) + "@" + strings.TrimSpace(marketID)
}

func (s *MemoryStore) InsertBatch(ctx context.Context, stockCode, marketID string, points []market.PricePoint) (int, error) {
	if !market.ValidKey(stockCode, marketID) || len(points) == 0 {
		return 0, nil
	}
	s.data.Update(key(stockCode, marketID), func(cur []market.PricePoint, _ bool) ([]market.PricePoint, bool) {
		return append(cur, points...), true
	})
	return len(points), nil
}

func (s *MemoryStore) SelectRange(ctx context.Context, q market.RangeQuery) ([]market.PricePoint, error) {
	if q.Empty() {
		return nil, nil
	}
	var snapshot []market.PricePoint
	s.data.Load(key(q.StockCode, q.MarketID), func(cur []market.PricePoint, ok bool) {
		if !ok || len(cur) == 0 {
			return
		}
		snapshot = make([]market.PricePoint, len(cur))
		copy(snapshot, cur)
	})
	if len(snapshot) == 0 {
		return nil, nil
	}
	return market.Select(snapshot, q), nil
}

func (s *MemoryStore) Close() error { return nil }
