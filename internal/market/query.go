package market

// RangeQuery 描述一次区间查询；指针为 nil 表示未指定。
type RangeQuery struct {
	StockCode string
	MarketID  string
	Start     *int64
	End       *int64
	Limit     *int
}

// Valid 要求 key 非空白且 limit 非负。
func (q RangeQuery) Valid() bool {
	if !ValidKey(q.StockCode, q.MarketID) {
		return false
	}
	return q.Limit == nil || *q.Limit >= 0
}

// Inverted 表示 start>end，结果必然为空。
func (q RangeQuery) Inverted() bool {
	return q.Start != nil && q.End != nil && *q.Start > *q.End
}

// Empty 表示无需访问任何后端即可确定结果为空。
func (q RangeQuery) Empty() bool {
	return !q.Valid() || q.Inverted() || (q.Limit != nil && *q.Limit == 0)
}

func (q RangeQuery) WithLimit(n int) RangeQuery {
	q.Limit = &n
	return q
}

// MinuteBounds 将秒级区间换算为分钟索引的 score 区间。
func (q RangeQuery) MinuteBounds() (min, max *int64) {
	if q.Start != nil {
		v := MinuteOf(*q.Start)
		min = &v
	}
	if q.End != nil {
		v := MinuteOf(*q.End)
		max = &v
	}
	return min, max
}

// Int64 / Int 便于构造可选参数。
func Int64(v int64) *int64 { return &v }

func Int(v int) *int { return &v }
