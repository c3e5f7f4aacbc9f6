package ingest

import (
	"context"
	"errors"
	"os"
	"strings"

	"kline/internal/logger"
	"kline/internal/market"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// FileIngestor 在启动时把本地 JSON 数组中的 tick 记录写入分钟索引。
type FileIngestor struct {
	ticks TickWriter
}

func NewFileIngestor(ticks TickWriter) *FileIngestor {
	return &FileIngestor{ticks: ticks}
}

// LoadResult 统计导入结果。
type LoadResult struct {
	OK   int
	Skip int
}

// Load 文件缺失或不是数组时只告警，不返回错误。
func (f *FileIngestor) Load(ctx context.Context, path string) (LoadResult, error) {
	var res LoadResult
	path = strings.TrimSpace(path)
	if path == "" {
		return res, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warnf("ingest: file %s not found, skipped", path)
			return res, nil
		}
		return res, err
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		logger.Warnf("ingest: file %s is not a json array, skipped", path)
		return res, nil
	}
	doc.ForEach(func(_, rec gjson.Result) bool {
		if ctx.Err() != nil {
			return false
		}
		code, mkt, ts, px, ok := parseRecord(rec)
		if !ok {
			res.Skip++
			return true
		}
		f.ticks.WriteTick(ctx, code, mkt, ts, decimal.NullDecimal{Decimal: px, Valid: true})
		res.OK++
		return true
	})
	logger.Infof("ingest: file %s loaded ok=%d skip=%d", path, res.OK, res.Skip)
	return res, ctx.Err()
}

func parseRecord(rec gjson.Result) (code, mkt string, ts int64, px decimal.Decimal, ok bool) {
	if !rec.IsObject() {
		return
	}
	code = strings.TrimSpace(rec.Get("stockCode").String())
	mkt = strings.TrimSpace(rec.Get("marketId").String())
	if !market.ValidKey(code, mkt) {
		return
	}
	price := rec.Get("price")
	var text string
	switch price.Type {
	case gjson.Number:
		text = price.Raw
	case gjson.String:
		text = price.Str
	default:
		return
	}
	px, ok = market.ParsePrice(strings.TrimSpace(text))
	if !ok {
		return
	}
	var err error
	ts, err = market.TickTimestamp(rec.Get("date").String(), rec.Get("time").String())
	if err != nil {
		ok = false
		return
	}
	return code, mkt, ts, px, true
}
