package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"kline/internal/cache"
	brcfg "kline/internal/config"
	"kline/internal/ingest"
	"kline/internal/logger"
	"kline/internal/names"
	"kline/internal/repository"
	"kline/internal/store"
	"kline/internal/store/sqlite"
	klinehttp "kline/internal/transport/http/kline"
)

type AppBuilder struct {
	cfg *brcfg.Config

	cacheClientFn func(brcfg.CacheConfig) (cache.Client, error)
	storeFn       func(brcfg.StoreConfig) (store.Store, error)
	deadLetterFn  func(brcfg.IngestConfig) *ingest.DeadLetterWriter
	kafkaSourceFn func(brcfg.IngestConfig, *ingest.Consumer) (*ingest.KafkaSource, error)
	namesFn       func(brcfg.NamesConfig, cache.Client, time.Duration) (*names.Resolver, error)
	httpFn        func(brcfg.Config, *repository.Repository, *names.Resolver, *cache.SeriesCache) (*klinehttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithCacheClient 用给定客户端替换按配置创建的缓存后端。
func WithCacheClient(c cache.Client) AppBuilderOption {
	return func(b *AppBuilder) {
		b.cacheClientFn = func(brcfg.CacheConfig) (cache.Client, error) { return c, nil }
	}
}

func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(brcfg.StoreConfig) (store.Store, error) { return st, nil }
	}
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		cacheClientFn: buildCacheClient,
		storeFn:       buildStore,
		deadLetterFn:  buildDeadLetter,
		kafkaSourceFn: buildKafkaSource,
		namesFn:       buildNameResolver,
		httpFn:        buildHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	app := &App{cfg: cfg}
	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}
	track := func(c io.Closer) {
		if c != nil {
			app.closers = append(app.closers, c)
		}
	}

	client, err := b.cacheClientFn(cfg.Cache)
	if err != nil {
		return fail(fmt.Errorf("init cache client: %w", err))
	}
	track(client)
	st, err := b.storeFn(cfg.Store)
	if err != nil {
		return fail(fmt.Errorf("init store: %w", err))
	}
	track(st)

	app.cache = cache.NewSeriesCache(client, cache.Options{OpTimeout: cfg.Cache.OpTimeout()})
	app.repo = repository.New(app.cache, st, repository.Options{
		UpsertTTL:     cfg.Repository.UpsertTTL(),
		RepopulateTTL: cfg.Repository.RepopulateTTL(),
	})

	policy := ingest.AckPolicy{}
	if sink, ok := st.(ingest.DiscardSink); ok {
		policy.Sinks = append(policy.Sinks, sink)
	}
	if dl := b.deadLetterFn(cfg.Ingest); dl != nil {
		track(dl)
		policy.Sinks = append(policy.Sinks, dl)
	}
	consumer := ingest.NewConsumer(app.repo, app.cache, ingest.ConsumerOptions{
		Policy:        policy,
		HandleTimeout: cfg.Ingest.HandleTimeout(),
	})

	if cfg.Ingest.File != "" {
		res, err := ingest.NewFileIngestor(app.cache).Load(ctx, cfg.Ingest.File)
		if err != nil {
			return fail(fmt.Errorf("load tick file: %w", err))
		}
		logger.Infof("✓ tick file %s: ok=%d skip=%d", cfg.Ingest.File, res.OK, res.Skip)
	}
	if cfg.Ingest.Enabled {
		src, err := b.kafkaSourceFn(cfg.Ingest, consumer)
		if err != nil {
			return fail(fmt.Errorf("init kafka source: %w", err))
		}
		app.source = src
	}

	resolver, err := b.namesFn(cfg.Names, client, cfg.Cache.OpTimeout())
	if err != nil {
		return fail(fmt.Errorf("init name resolver: %w", err))
	}
	app.http, err = b.httpFn(*cfg, app.repo, resolver, app.cache)
	if err != nil {
		return fail(fmt.Errorf("init http server: %w", err))
	}

	app.Summary = newStartupSummary(cfg, cacheBackendLabel(client), policy)
	return app, nil
}

func buildCacheClient(cfg brcfg.CacheConfig) (cache.Client, error) {
	switch cfg.Backend {
	case brcfg.BackendRedis:
		r := cfg.Redis
		return cache.NewRedisClient(cache.RedisOptions{
			Addr:             r.Addr,
			Password:         r.Password,
			DB:               r.DB,
			DialTimeout:      time.Duration(r.DialTimeoutMs) * time.Millisecond,
			ReadTimeout:      time.Duration(r.ReadTimeoutMs) * time.Millisecond,
			WriteTimeout:     time.Duration(r.WriteTimeoutMs) * time.Millisecond,
			PoolSize:         r.PoolSize,
			BreakerThreshold: r.BreakerThreshold,
			BreakerCooldown:  time.Duration(r.BreakerCooldownSeconds) * time.Second,
		}), nil
	case brcfg.BackendMemory, "":
		return cache.NewMemoryClient(cfg.JanitorInterval()), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

func buildStore(cfg brcfg.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case brcfg.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case brcfg.DriverMemory, "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func buildDeadLetter(cfg brcfg.IngestConfig) *ingest.DeadLetterWriter {
	brokers := cfg.ActiveBrokers()
	if !cfg.Enabled || cfg.DeadLetterTopic == "" || len(brokers) == 0 {
		return nil
	}
	return ingest.NewDeadLetterWriter(brokers, cfg.DeadLetterTopic)
}

func buildKafkaSource(cfg brcfg.IngestConfig, consumer *ingest.Consumer) (*ingest.KafkaSource, error) {
	return ingest.NewKafkaSource(ingest.KafkaConfig{
		Brokers:     cfg.ActiveBrokers(),
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		Concurrency: cfg.Concurrency,
	}, consumer)
}

// buildNameResolver 依次使用种子表与远端名称服务。
func buildNameResolver(cfg brcfg.NamesConfig, client cache.Client, opTimeout time.Duration) (*names.Resolver, error) {
	var services []names.Service
	if cfg.SeedFile != "" {
		seed, err := names.NewSeedTable(cfg.SeedFile, cfg.Watch)
		if err != nil {
			return nil, err
		}
		services = append(services, seed)
	}
	if cfg.BaseURL != "" {
		services = append(services, names.NewHTTPService(cfg.BaseURL, cfg.Timeout()))
	}
	return names.NewResolver(names.NewCache(client, opTimeout), cfg.TTL(), services...), nil
}

func buildHTTPServer(cfg brcfg.Config, repo *repository.Repository, resolver *names.Resolver, sc *cache.SeriesCache) (*klinehttp.Server, error) {
	return klinehttp.NewServer(klinehttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Series:  repo,
		Names:   resolver,
		Checker: sc,
		Limits: klinehttp.Limits{
			MaxLimit:        cfg.HTTP.MaxLimit,
			MaxStockCodeLen: cfg.HTTP.MaxStockCodeLen,
			MaxMarketIDLen:  cfg.HTTP.MaxMarketIDLen,
		},
	})
}

func cacheBackendLabel(c cache.Client) string {
	switch c.(type) {
	case *cache.MemoryClient:
		return brcfg.BackendMemory
	case *cache.RedisClient:
		return brcfg.BackendRedis
	default:
		return "custom"
	}
}
