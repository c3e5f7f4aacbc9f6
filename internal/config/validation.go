package config

import (
	"fmt"
	"strings"
)

const maxIngestConcurrency = 64

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Repository.validate(); err != nil {
		return err
	}
	if err := c.Ingest.validate(); err != nil {
		return err
	}
	if err := c.HTTP.validate(); err != nil {
		return err
	}
	return nil
}

func (c *CacheConfig) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("cache.redis.addr is required when cache.backend=redis")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("cache.redis.db must be >= 0")
		}
	default:
		return fmt.Errorf("cache.backend must be one of memory|redis, got %q", c.Backend)
	}
	if c.OpTimeoutMs <= 0 {
		return fmt.Errorf("cache.op_timeout_ms must be > 0")
	}
	if c.JanitorIntervalSeconds < 0 {
		return fmt.Errorf("cache.janitor_interval_seconds must be >= 0")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("store.sqlite_path is required when store.driver=sqlite")
		}
		return nil
	default:
		return fmt.Errorf("store.driver must be one of memory|sqlite, got %q", s.Driver)
	}
}

func (r *RepositoryConfig) validate() error {
	if r.UpsertTTLSeconds <= 0 || r.RepopulateTTLSeconds <= 0 {
		return fmt.Errorf("repository ttl values must be > 0")
	}
	return nil
}

func (i *IngestConfig) validate() error {
	if !i.Enabled {
		return nil
	}
	if len(i.ActiveBrokers()) == 0 {
		return fmt.Errorf("ingest.brokers is required when ingest.enabled=true")
	}
	if strings.TrimSpace(i.Topic) == "" {
		return fmt.Errorf("ingest.topic cannot be empty")
	}
	if i.Concurrency < 1 || i.Concurrency > maxIngestConcurrency {
		return fmt.Errorf("ingest.concurrency must be in [1,%d]", maxIngestConcurrency)
	}
	return nil
}

func (h *HTTPConfig) validate() error {
	if h.MaxLimit <= 0 {
		return fmt.Errorf("http.max_limit must be > 0")
	}
	if h.MaxStockCodeLen <= 0 || h.MaxMarketIDLen <= 0 {
		return fmt.Errorf("http.max_stockcode_len and http.max_marketid_len must be > 0")
	}
	return nil
}
