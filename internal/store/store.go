package store

import (
	"context"

	"kline/internal/market"
)

// Store 是持久层（权威数据源）。只追加，不去重。
type Store interface {
	// InsertBatch 追加写入一批点，返回写入条数；key 为空白时写入 0 条。
	InsertBatch(ctx context.Context, stockCode, marketID string, points []market.PricePoint) (int, error)
	// SelectRange 返回闭区间内的点，按 ts 升序（同 ts 保持写入顺序），最多 limit 条。
	SelectRange(ctx context.Context, q market.RangeQuery) ([]market.PricePoint, error)
	Close() error
}
