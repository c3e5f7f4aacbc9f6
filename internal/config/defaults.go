package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":8080"
	defaultCacheBackend    = BackendMemory
	defaultCacheOpTimeout  = 500
	defaultCacheJanitor    = 10
	defaultRedisAddr       = "127.0.0.1:6379"
	defaultRedisDial       = 500
	defaultRedisRW         = 500
	defaultRedisPool       = 16
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 10
	defaultStoreDriver     = DriverMemory
	defaultSQLitePath      = "data/kline.db"
	defaultCacheTTLSeconds = 900
	defaultIngestTopic     = "timeline"
	defaultIngestGroup     = "kline-service"
	defaultIngestWorkers   = 1
	defaultIngestTimeout   = 2000
	defaultNamesTTL        = 3600
	defaultNamesTimeout    = 800
	defaultNamesWatch      = true
	defaultHTTPMaxLimit    = 1000
	defaultHTTPCodeLen     = 64
	defaultHTTPMarketLen   = 16
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Cache.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Repository.applyDefaults(keys)
	c.Ingest.applyDefaults(keys)
	c.Names.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (c *CacheConfig) applyDefaults(keys keySet) {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	applyFieldDefaults(keys,
		stringFieldDefault("cache.backend", &c.Backend, defaultCacheBackend),
		intFieldDefault("cache.op_timeout_ms", &c.OpTimeoutMs, defaultCacheOpTimeout),
		intFieldDefault("cache.janitor_interval_seconds", &c.JanitorIntervalSeconds, defaultCacheJanitor),
	)
	if c.Backend != BackendRedis {
		return
	}
	r := &c.Redis
	applyFieldDefaults(keys,
		stringFieldDefault("cache.redis.addr", &r.Addr, defaultRedisAddr),
		intFieldDefault("cache.redis.dial_timeout_ms", &r.DialTimeoutMs, defaultRedisDial),
		intFieldDefault("cache.redis.read_timeout_ms", &r.ReadTimeoutMs, defaultRedisRW),
		intFieldDefault("cache.redis.write_timeout_ms", &r.WriteTimeoutMs, defaultRedisRW),
		intFieldDefault("cache.redis.pool_size", &r.PoolSize, defaultRedisPool),
		intFieldDefault("cache.redis.breaker_threshold", &r.BreakerThreshold, defaultBreakerFailures),
		intFieldDefault("cache.redis.breaker_cooldown_seconds", &r.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	applyFieldDefaults(keys, stringFieldDefault("store.driver", &s.Driver, defaultStoreDriver))
	if s.Driver == DriverSQLite {
		applyFieldDefaults(keys, stringFieldDefault("store.sqlite_path", &s.SQLitePath, defaultSQLitePath))
	}
}

func (r *RepositoryConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("repository.upsert_ttl_seconds", &r.UpsertTTLSeconds, defaultCacheTTLSeconds),
		intFieldDefault("repository.repopulate_ttl_seconds", &r.RepopulateTTLSeconds, defaultCacheTTLSeconds),
	)
}

func (i *IngestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("ingest.topic", &i.Topic, defaultIngestTopic),
		stringFieldDefault("ingest.group_id", &i.GroupID, defaultIngestGroup),
		intFieldDefault("ingest.concurrency", &i.Concurrency, defaultIngestWorkers),
		intFieldDefault("ingest.handle_timeout_ms", &i.HandleTimeoutMs, defaultIngestTimeout),
	)
}

func (n *NamesConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("names.ttl_seconds", &n.TTLSeconds, defaultNamesTTL),
		intFieldDefault("names.timeout_ms", &n.TimeoutMs, defaultNamesTimeout),
		boolFieldDefault("names.watch", &n.Watch, defaultNamesWatch),
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("http.max_limit", &h.MaxLimit, defaultHTTPMaxLimit),
		intFieldDefault("http.max_stockcode_len", &h.MaxStockCodeLen, defaultHTTPCodeLen),
		intFieldDefault("http.max_marketid_len", &h.MaxMarketIDLen, defaultHTTPMarketLen),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

// boolFieldDefault 只在配置文件未显式出现该键时生效。
func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
