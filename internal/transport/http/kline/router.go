package klinehttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"kline/internal/market"

	"github.com/gin-gonic/gin"
)

const (
	defaultMaxLimit        = 1000
	defaultMaxStockCodeLen = 64
	defaultMaxMarketIDLen  = 16
	defaultCheckStockCode  = "300033"
	defaultCheckMarketID   = "33"
)

// Router 注册查询相关路由。
type Router struct {
	series  SeriesFinder
	names   NameResolver
	checker CacheChecker
	limits  Limits
}

func NewRouter(series SeriesFinder, names NameResolver, checker CacheChecker, limits Limits) *Router {
	if limits.MaxLimit <= 0 {
		limits.MaxLimit = defaultMaxLimit
	}
	if limits.MaxStockCodeLen <= 0 {
		limits.MaxStockCodeLen = defaultMaxStockCodeLen
	}
	if limits.MaxMarketIDLen <= 0 {
		limits.MaxMarketIDLen = defaultMaxMarketIDLen
	}
	return &Router{series: series, names: names, checker: checker, limits: limits}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/kline", r.handleKline)
	if r.checker != nil {
		group.GET("/cache/check", r.handleCacheCheck)
	}
}

type envelope struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Data    any        `json:"data"`
	List    []klineRow `json:"list"`
}

type klineRow struct {
	Date  string      `json:"date"`
	Time  string      `json:"time"`
	Open  json.Number `json:"open"`
	High  json.Number `json:"high"`
	Low   json.Number `json:"low"`
	Close json.Number `json:"close"`
	Vol   int64       `json:"vol"`
}

func errorEnvelope(code, msg string) envelope {
	return envelope{Code: code, Message: msg, Data: nil, List: []klineRow{}}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorEnvelope("400", msg))
}

func (r *Router) parseQuery(c *gin.Context) (market.RangeQuery, error) {
	var q market.RangeQuery
	code, ok := c.GetQuery("stockcode")
	if !ok {
		return q, fmt.Errorf("required parameter 'stockcode' is not present")
	}
	mkt, ok := c.GetQuery("marketId")
	if !ok {
		return q, fmt.Errorf("required parameter 'marketId' is not present")
	}
	if strings.TrimSpace(code) == "" {
		return q, fmt.Errorf("stockcode must not be blank")
	}
	if strings.TrimSpace(mkt) == "" {
		return q, fmt.Errorf("marketId must not be blank")
	}
	if len(code) > r.limits.MaxStockCodeLen {
		return q, fmt.Errorf("stockcode too long")
	}
	if len(mkt) > r.limits.MaxMarketIDLen {
		return q, fmt.Errorf("marketId too long")
	}
	q.StockCode, q.MarketID = code, mkt

	var err error
	if q.Start, err = optionalInt64(c, "startTs"); err != nil {
		return q, err
	}
	if q.End, err = optionalInt64(c, "endTs"); err != nil {
		return q, err
	}
	if raw, ok := c.GetQuery("limit"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("invalid value for 'limit': %s", raw)
		}
		if n < 0 {
			return q, fmt.Errorf("limit must be >= 0")
		}
		if n > r.limits.MaxLimit {
			n = r.limits.MaxLimit
		}
		q.Limit = &n
	}
	return q, nil
}

func optionalInt64(c *gin.Context, name string) (*int64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value for '%s': %s", name, raw)
	}
	return &v, nil
}

func (r *Router) handleKline(c *gin.Context) {
	q, err := r.parseQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	series := r.series.FindRange(ctx, q)
	name := ""
	if r.names != nil {
		name = r.names.Resolve(ctx, q.StockCode, q.MarketID)
	}
	pts := market.Select(series.Points, market.RangeQuery{})
	rows := make([]klineRow, 0, len(pts))
	for _, p := range pts {
		date, hhmm := market.FormatTick(p.Ts)
		rows = append(rows, klineRow{
			Date:  date,
			Time:  hhmm,
			Open:  json.Number(market.PlainString(p.Open)),
			High:  json.Number(market.PlainString(p.High)),
			Low:   json.Number(market.PlainString(p.Low)),
			Close: json.Number(market.PlainString(p.Close)),
			Vol:   p.Vol,
		})
	}
	c.JSON(http.StatusOK, envelope{
		Code:    "0",
		Message: "success",
		Data:    gin.H{"stockName": name},
		List:    rows,
	})
}

func (r *Router) handleCacheCheck(c *gin.Context) {
	code := strings.TrimSpace(c.DefaultQuery("stockcode", defaultCheckStockCode))
	mkt := strings.TrimSpace(c.DefaultQuery("marketId", defaultCheckMarketID))
	if code == "" || mkt == "" {
		badRequest(c, "stockcode and marketId must not be blank")
		return
	}
	rep := r.checker.Check(c.Request.Context(), code, mkt)
	c.JSON(http.StatusOK, gin.H{
		"code":    "0",
		"message": "success",
		"data":    rep,
	})
}
