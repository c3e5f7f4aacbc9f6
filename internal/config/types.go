package config

import (
	"strings"
	"time"
)

// Config 是 kline 服务的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Cache      CacheConfig      `toml:"cache"`
	Store      StoreConfig      `toml:"store"`
	Repository RepositoryConfig `toml:"repository"`
	Ingest     IngestConfig     `toml:"ingest"`
	Names      NamesConfig      `toml:"names"`
	HTTP       HTTPConfig       `toml:"http"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type CacheConfig struct {
	Backend                string      `toml:"backend"`
	OpTimeoutMs            int         `toml:"op_timeout_ms"`
	JanitorIntervalSeconds int         `toml:"janitor_interval_seconds"`
	Redis                  RedisConfig `toml:"redis"`
}

func (c CacheConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMs) * time.Millisecond
}

func (c CacheConfig) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSeconds) * time.Second
}

type RedisConfig struct {
	Addr                   string `toml:"addr"`
	Password               string `toml:"password"`
	DB                     int    `toml:"db"`
	DialTimeoutMs          int    `toml:"dial_timeout_ms"`
	ReadTimeoutMs          int    `toml:"read_timeout_ms"`
	WriteTimeoutMs         int    `toml:"write_timeout_ms"`
	PoolSize               int    `toml:"pool_size"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

type StoreConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

type RepositoryConfig struct {
	UpsertTTLSeconds     int `toml:"upsert_ttl_seconds"`
	RepopulateTTLSeconds int `toml:"repopulate_ttl_seconds"`
}

func (r RepositoryConfig) UpsertTTL() time.Duration {
	return time.Duration(r.UpsertTTLSeconds) * time.Second
}

func (r RepositoryConfig) RepopulateTTL() time.Duration {
	return time.Duration(r.RepopulateTTLSeconds) * time.Second
}

// IngestConfig 控制 Kafka 行情消费与启动时的文件导入。
type IngestConfig struct {
	Enabled         bool     `toml:"enabled"`
	Brokers         []string `toml:"brokers"`
	Topic           string   `toml:"topic"`
	GroupID         string   `toml:"group_id"`
	Concurrency     int      `toml:"concurrency"`
	HandleTimeoutMs int      `toml:"handle_timeout_ms"`
	DeadLetterTopic string   `toml:"dead_letter_topic"`
	File            string   `toml:"file"`
}

func (i IngestConfig) HandleTimeout() time.Duration {
	return time.Duration(i.HandleTimeoutMs) * time.Millisecond
}

// ActiveBrokers 去掉空白项。
func (i IngestConfig) ActiveBrokers() []string {
	out := make([]string, 0, len(i.Brokers))
	for _, b := range i.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type NamesConfig struct {
	TTLSeconds int    `toml:"ttl_seconds"`
	BaseURL    string `toml:"base_url"`
	TimeoutMs  int    `toml:"timeout_ms"`
	SeedFile   string `toml:"seed_file"`
	Watch      bool   `toml:"watch"`
}

func (n NamesConfig) TTL() time.Duration { return time.Duration(n.TTLSeconds) * time.Second }

func (n NamesConfig) Timeout() time.Duration { return time.Duration(n.TimeoutMs) * time.Millisecond }

type HTTPConfig struct {
	MaxLimit        int `toml:"max_limit"`
	MaxStockCodeLen int `toml:"max_stockcode_len"`
	MaxMarketIDLen  int `toml:"max_marketid_len"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
