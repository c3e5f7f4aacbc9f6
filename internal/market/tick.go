package market

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTick = errors.New("invalid tick")

	datePattern = regexp.MustCompile(`^\d{8}$`)
	timePattern = regexp.MustCompile(`^\d{4}$`)
)

const tickLayout = "200601021504"

// Tick 是行情源推送的一条分钟价格。
type Tick struct {
	StockCode string              `json:"stockCode"`
	MarketID  string              `json:"marketId"`
	Price     decimal.NullDecimal `json:"price"`
	Date      string              `json:"date"`
	Time      string              `json:"time"`
}

// Validate 校验 key、价格与 yyyyMMdd/HHmm 格式。
func (t Tick) Validate() error {
	if !ValidKey(t.StockCode, t.MarketID) {
		return fmt.Errorf("%w: blank stockCode/marketId", ErrInvalidTick)
	}
	if !t.Price.Valid {
		return fmt.Errorf("%w: missing price", ErrInvalidTick)
	}
	if _, err := t.Timestamp(); err != nil {
		return err
	}
	return nil
}

// Timestamp 把 date+time 解释为 UTC 分钟起点，返回 epoch 秒。
func (t Tick) Timestamp() (int64, error) {
	return TickTimestamp(t.Date, t.Time)
}

func (t Tick) Point() (PricePoint, error) {
	if !t.Price.Valid {
		return PricePoint{}, fmt.Errorf("%w: missing price", ErrInvalidTick)
	}
	ts, err := t.Timestamp()
	if err != nil {
		return PricePoint{}, err
	}
	return SinglePrice(ts, t.Price.Decimal), nil
}

// Series 生成单点序列。
func (t Tick) Series() (Series, error) {
	p, err := t.Point()
	if err != nil {
		return Series{}, err
	}
	return NewSeries(strings.TrimSpace(t.StockCode), strings.TrimSpace(t.MarketID), p), nil
}

func TickTimestamp(date, hhmm string) (int64, error) {
	date = strings.TrimSpace(date)
	hhmm = strings.TrimSpace(hhmm)
	if !datePattern.MatchString(date) {
		return 0, fmt.Errorf("%w: date %q is not yyyyMMdd", ErrInvalidTick, date)
	}
	if !timePattern.MatchString(hhmm) {
		return 0, fmt.Errorf("%w: time %q is not HHmm", ErrInvalidTick, hhmm)
	}
	at, err := time.ParseInLocation(tickLayout, date+hhmm, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTick, err)
	}
	return at.Unix(), nil
}

// FormatTick 是 TickTimestamp 的逆运算，用于对外输出 date/time。
func FormatTick(ts int64) (date, hhmm string) {
	at := time.Unix(ts, 0).UTC()
	return at.Format("20060102"), at.Format("1504")
}

// MinuteOf 向下取整到分钟（负数朝负无穷）。
func MinuteOf(ts int64) int64 {
	m := ts / 60
	if ts%60 != 0 && ts < 0 {
		m--
	}
	return m
}
