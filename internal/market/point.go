package market

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// PricePoint 是一根分钟级 K 线（ts 为 UTC 秒）。
type PricePoint struct {
	Ts    int64
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
	Vol   int64
}

type pointJSON struct {
	Ts    int64       `json:"ts"`
	Open  json.Number `json:"open"`
	High  json.Number `json:"high"`
	Low   json.Number `json:"low"`
	Close json.Number `json:"close"`
	Vol   int64       `json:"vol"`
}

// MarshalJSON 以数字形式输出价格，并保留原始小数位。
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		Ts:    p.Ts,
		Open:  json.Number(PlainString(p.Open)),
		High:  json.Number(PlainString(p.High)),
		Low:   json.Number(PlainString(p.Low)),
		Close: json.Number(PlainString(p.Close)),
		Vol:   p.Vol,
	})
}

func (p *PricePoint) UnmarshalJSON(data []byte) error {
	var rec PointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*p = rec.Point()
	return nil
}

// PointRecord 是快照中的可空形式，解码时使用。
type PointRecord struct {
	Ts    *int64              `json:"ts"`
	Open  decimal.NullDecimal `json:"open"`
	High  decimal.NullDecimal `json:"high"`
	Low   decimal.NullDecimal `json:"low"`
	Close decimal.NullDecimal `json:"close"`
	Vol   *int64              `json:"vol"`
}

// Valid 只检查字段是否齐全，不校验 low<=open/close<=high。
func (r PointRecord) Valid() bool {
	return r.Ts != nil && r.Open.Valid && r.High.Valid && r.Low.Valid && r.Close.Valid && r.Vol != nil
}

func (r PointRecord) Point() PricePoint {
	p := PricePoint{
		Open:  r.Open.Decimal,
		High:  r.High.Decimal,
		Low:   r.Low.Decimal,
		Close: r.Close.Decimal,
	}
	if r.Ts != nil {
		p.Ts = *r.Ts
	}
	if r.Vol != nil {
		p.Vol = *r.Vol
	}
	return p
}

// SinglePrice 构造 open=high=low=close=price、vol=0 的点。
func SinglePrice(ts int64, price decimal.Decimal) PricePoint {
	return PricePoint{Ts: ts, Open: price, High: price, Low: price, Close: price}
}

// Series 是某只股票在某市场下按插入顺序排列的点集合，允许重复 ts。
type Series struct {
	StockCode string       `json:"stockCode"`
	MarketID  string       `json:"marketId"`
	StockName string       `json:"stockName,omitempty"`
	Points    []PricePoint `json:"points"`
}

func NewSeries(stockCode, marketID string, points ...PricePoint) Series {
	s := Series{StockCode: stockCode, MarketID: marketID}
	if len(points) > 0 {
		s.Points = append(s.Points, points...)
	}
	return s
}

func (s *Series) Add(p PricePoint) { s.Points = append(s.Points, p) }

func (s Series) Len() int { return len(s.Points) }

func (s Series) Empty() bool { return len(s.Points) == 0 }

// HasKey 判断 (stockCode, marketId) 是否都非空白。
func (s Series) HasKey() bool { return ValidKey(s.StockCode, s.MarketID) }

func (s Series) Key() string { return s.StockCode + "@" + s.MarketID }

// InRange 返回 [start,end] 闭区间内的点，nil 表示该侧不设界。
func (s Series) InRange(start, end *int64) []PricePoint {
	out := make([]PricePoint, 0, len(s.Points))
	for _, p := range s.Points {
		if inWindow(p.Ts, start, end) {
			out = append(out, p)
		}
	}
	return out
}

func ValidKey(stockCode, marketID string) bool {
	return strings.TrimSpace(stockCode) != "" && strings.TrimSpace(marketID) != ""
}

// Select 过滤到查询窗口，按 ts 升序稳定排序，再截取前 limit 条。
func Select(points []PricePoint, q RangeQuery) []PricePoint {
	if q.Limit != nil && *q.Limit <= 0 {
		return nil
	}
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if inWindow(p.Ts, q.Start, q.End) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	if q.Limit != nil && len(out) > *q.Limit {
		out = out[:*q.Limit]
	}
	return out
}

func inWindow(ts int64, start, end *int64) bool {
	if start != nil && ts < *start {
		return false
	}
	if end != nil && ts > *end {
		return false
	}
	return true
}
