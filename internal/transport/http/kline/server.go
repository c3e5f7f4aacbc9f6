package klinehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"kline/internal/cache"
	"kline/internal/logger"
	"kline/internal/market"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SeriesFinder 是查询接口依赖的仓储能力。
type SeriesFinder interface {
	FindRange(ctx context.Context, q market.RangeQuery) market.Series
}

// NameResolver 把股票代码解析为名称。
type NameResolver interface {
	Resolve(ctx context.Context, stockCode, marketID string) string
}

// CacheChecker 提供缓存诊断。
type CacheChecker interface {
	Check(ctx context.Context, stockCode, marketID string) cache.CheckReport
}

// Limits 约束查询参数。
type Limits struct {
	MaxLimit        int
	MaxStockCodeLen int
	MaxMarketIDLen  int
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr    string
	Series  SeriesFinder
	Names   NameResolver
	Checker CacheChecker
	Limits  Limits
}

// Server 提供 /kline 查询与 /cache/check 诊断接口。
type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Series == nil {
		return nil, errors.New("kline http server requires a series finder")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestID(), recoverEnvelope(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	NewRouter(cfg.Series, cfg.Names, cfg.Checker, cfg.Limits).Register(router.Group(""))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler 暴露底层 http.Handler，便于测试。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http: listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

const requestIDHeader = "X-Request-Id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// recoverEnvelope 把 panic 转成统一的 500 响应体。
func recoverEnvelope() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Errorf("http: panic %s %s: %v (request_id=%s)", c.Request.Method, c.Request.URL.Path, recovered, c.GetString("request_id"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorEnvelope("500", "internal error"))
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s id=%s",
			c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start), c.GetString("request_id"))
	}
}
