package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"kline/internal/cache"
	brcfg "kline/internal/config"
	"kline/internal/ingest"
	"kline/internal/logger"
	"kline/internal/repository"
	klinehttp "kline/internal/transport/http/kline"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：持有仓储、HTTP 服务与 Kafka 消费者。
type App struct {
	cfg     *brcfg.Config
	repo    *repository.Repository
	cache   *cache.SeriesCache
	http    *klinehttp.Server
	source  *ingest.KafkaSource
	closers []io.Closer
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与行情消费，直到 ctx 取消；返回前释放所有资源。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("kline http server error: %w", err)
			}
			return nil
		})
	}
	if a.source != nil {
		group.Go(func() error {
			if err := a.source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("kafka source error: %w", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Close 按注册的逆序关闭资源。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Repository exposes the cache-aside repository (for tests and embedding).
func (a *App) Repository() *repository.Repository {
	if a == nil {
		return nil
	}
	return a.repo
}

func (a *App) SeriesCache() *cache.SeriesCache {
	if a == nil {
		return nil
	}
	return a.cache
}

func (a *App) HTTPServer() *klinehttp.Server {
	if a == nil {
		return nil
	}
	return a.http
}
