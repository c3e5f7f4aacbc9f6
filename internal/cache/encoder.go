package cache

import (
	"encoding/json"
	"math"

	"kline/internal/market"

	"github.com/shopspring/decimal"
)

// FastPathEncoder 是分钟索引的有损编码：score=分钟序号，member=收盘价文本。
// 解码得到的点 o=h=l=c，vol=0，ts 为分钟起点。
type FastPathEncoder struct{}

func (FastPathEncoder) Score(ts int64) float64 {
	return float64(market.MinuteOf(ts))
}

func (FastPathEncoder) Member(price decimal.Decimal) string {
	return market.PlainString(price)
}

// Range 把秒级查询边界换算为分钟 score 区间。
func (FastPathEncoder) Range(q market.RangeQuery) ScoreRange {
	var rng ScoreRange
	min, max := q.MinuteBounds()
	if min != nil {
		v := float64(*min)
		rng.Min = &v
	}
	if max != nil {
		v := float64(*max)
		rng.Max = &v
	}
	return rng
}

// Decode 把成员还原为点；价格无法解析时返回 false。
func (FastPathEncoder) Decode(m ScoredMember) (market.PricePoint, bool) {
	price, ok := market.ParsePrice(m.Member)
	if !ok || math.IsNaN(m.Score) || math.IsInf(m.Score, 0) {
		return market.PricePoint{}, false
	}
	return market.SinglePrice(int64(m.Score)*60, price), true
}

// SnapshotEncoder 是快照的无损 JSON 编码。
type SnapshotEncoder struct{}

func (SnapshotEncoder) Encode(points []market.PricePoint) (string, error) {
	if points == nil {
		points = []market.PricePoint{}
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type tickRecord struct {
	StockCode string              `json:"stockCode"`
	MarketID  string              `json:"marketId"`
	Price     decimal.NullDecimal `json:"price"`
	Date      *string             `json:"date"`
	Time      *string             `json:"time"`
}

// Decode 接受两种形态：PricePoint 数组（任一元素带 ts），或 tick 记录数组。
// 其余输入一律视为无数据。
func (SnapshotEncoder) Decode(raw string) []market.PricePoint {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil || len(elems) == 0 {
		return nil
	}
	if pts, ok := decodePointArray(elems); ok {
		return pts
	}
	return decodeTickArray(elems)
}

func decodePointArray(elems []json.RawMessage) ([]market.PricePoint, bool) {
	out := make([]market.PricePoint, 0, len(elems))
	anyTs := false
	for _, e := range elems {
		var rec market.PointRecord
		if err := json.Unmarshal(e, &rec); err != nil {
			continue
		}
		if rec.Ts == nil {
			continue
		}
		anyTs = true
		out = append(out, rec.Point())
	}
	return out, anyTs
}

func decodeTickArray(elems []json.RawMessage) []market.PricePoint {
	out := make([]market.PricePoint, 0, len(elems))
	for _, e := range elems {
		var rec tickRecord
		if err := json.Unmarshal(e, &rec); err != nil {
			continue
		}
		if rec.Date == nil || rec.Time == nil || !rec.Price.Valid {
			continue
		}
		ts, err := market.TickTimestamp(*rec.Date, *rec.Time)
		if err != nil {
			continue
		}
		out = append(out, market.SinglePrice(ts, rec.Price.Decimal))
	}
	return out
}
