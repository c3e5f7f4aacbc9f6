package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"kline/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqliteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pts := []market.PricePoint{
		{Ts: 180, Open: decimal.RequireFromString("3.10"), High: decimal.RequireFromString("3.50"), Low: decimal.RequireFromString("3.00"), Close: decimal.RequireFromString("3.20"), Vol: 7},
		market.SinglePrice(60, decimal.RequireFromString("86.960")),
		market.SinglePrice(120, decimal.RequireFromString("2")),
		market.SinglePrice(120, decimal.RequireFromString("2.5")),
	}
	n, err := s.InsertBatch(ctx, "300033", "33", pts)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	q := market.RangeQuery{StockCode: "300033", MarketID: "33"}
	got, err := s.SelectRange(ctx, q)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []int64{60, 120, 120, 180}, []int64{got[0].Ts, got[1].Ts, got[2].Ts, got[3].Ts})
	assert.Equal(t, "86.960", market.PlainString(got[0].Close))
	assert.Equal(t, "2", market.PlainString(got[1].Close), "ties keep insertion order")
	assert.Equal(t, int64(7), got[3].Vol)

	limited, err := s.SelectRange(ctx, q.WithLimit(2))
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	window := q
	window.Start, window.End = market.Int64(100), market.Int64(180)
	got, err = s.SelectRange(ctx, window)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	empty, err := s.SelectRange(ctx, q.WithLimit(0))
	require.NoError(t, err)
	assert.Empty(t, empty)

	negative, err := s.SelectRange(ctx, q.WithLimit(-1))
	require.NoError(t, err)
	assert.Empty(t, negative)
}

func TestSqliteStoreBlankKey(t *testing.T) {
	s := openTestStore(t)
	n, err := s.InsertBatch(context.Background(), " ", "33", []market.PricePoint{market.SinglePrice(1, decimal.NewFromInt(1))})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordDiscard(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.RecordDiscard(ctx, "timeline", 0, 12, "missing stock_minute_data", []byte(`{"topic":"timeline"}`)))
	require.NoError(t, s.RecordDiscard(ctx, "timeline", 1, 13, "malformed json", []byte(`not json`)))

	got, err := s.RecentDiscards(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(13), got[0].Offset)
	assert.Equal(t, `"not json"`, got[0].Payload)
	assert.JSONEq(t, `{"topic":"timeline"}`, got[1].Payload)
}
