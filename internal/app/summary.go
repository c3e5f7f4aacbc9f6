package app

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	brcfg "kline/internal/config"
	"kline/internal/ingest"
	"kline/internal/logger"
)

type StartupSummary struct {
	HTTPAddr string
	Cache    CacheSummary
	Store    StoreSummary
	Ingest   IngestSummary
	Names    NamesSummary

	out io.Writer
}

type CacheSummary struct {
	Backend       string
	OpTimeoutMs   int
	UpsertTTL     int
	RepopulateTTL int
}

type StoreSummary struct {
	Driver string
	Path   string
}

type IngestSummary struct {
	Enabled     bool
	Brokers     []string
	Topic       string
	GroupID     string
	Readers     int
	DeadLetter  string
	DiscardSink int
	File        string
}

type NamesSummary struct {
	SeedFile string
	BaseURL  string
	TTL      int
}

func newStartupSummary(cfg *brcfg.Config, backend string, policy ingest.AckPolicy) *StartupSummary {
	return &StartupSummary{
		HTTPAddr: cfg.App.HTTPAddr,
		Cache: CacheSummary{
			Backend:       backend,
			OpTimeoutMs:   cfg.Cache.OpTimeoutMs,
			UpsertTTL:     cfg.Repository.UpsertTTLSeconds,
			RepopulateTTL: cfg.Repository.RepopulateTTLSeconds,
		},
		Store: StoreSummary{Driver: cfg.Store.Driver, Path: cfg.Store.SQLitePath},
		Ingest: IngestSummary{
			Enabled:     cfg.Ingest.Enabled,
			Brokers:     cfg.Ingest.ActiveBrokers(),
			Topic:       cfg.Ingest.Topic,
			GroupID:     cfg.Ingest.GroupID,
			Readers:     cfg.Ingest.Concurrency,
			DeadLetter:  cfg.Ingest.DeadLetterTopic,
			DiscardSink: len(policy.Sinks),
			File:        cfg.Ingest.File,
		},
		Names: NamesSummary{
			SeedFile: cfg.Names.SeedFile,
			BaseURL:  cfg.Names.BaseURL,
			TTL:      cfg.Names.TTLSeconds,
		},
	}
}

// Print 未指定输出时逐行写入日志。
func (s *StartupSummary) Print() {
	if s.out != nil {
		s.render(s.out)
		return
	}
	var buf bytes.Buffer
	s.render(&buf)
	logger.InfoBlock(buf.String())
}

func (s *StartupSummary) render(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[HTTP]")
	fmt.Fprintf(w, "  监听地址: %s\n", s.HTTPAddr)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[缓存 (CACHE)]")
	fmt.Fprintf(w, "  后端: %s\n", s.Cache.Backend)
	fmt.Fprintf(w, "  单次超时: %dms\n", s.Cache.OpTimeoutMs)
	fmt.Fprintf(w, "  写入 TTL: %ds / 回填 TTL: %ds\n", s.Cache.UpsertTTL, s.Cache.RepopulateTTL)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[存储 (STORE)]")
	fmt.Fprintf(w, "  驱动: %s\n", s.Store.Driver)
	if s.Store.Path != "" {
		fmt.Fprintf(w, "  路径: %s\n", s.Store.Path)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[行情接入 (INGEST)]")
	if s.Ingest.Enabled {
		fmt.Fprintf(w, "  Kafka: %s topic=%s group=%s readers=%d\n",
			formatList(s.Ingest.Brokers), s.Ingest.Topic, s.Ingest.GroupID, s.Ingest.Readers)
		fmt.Fprintf(w, "  死信主题: %s\n", orDash(s.Ingest.DeadLetter))
	} else {
		fmt.Fprintln(w, "  Kafka: (未启用)")
	}
	fmt.Fprintf(w, "  丢弃记录: %d 个 sink\n", s.Ingest.DiscardSink)
	fmt.Fprintf(w, "  启动导入文件: %s\n", orDash(s.Ingest.File))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[股票名称 (NAMES)]")
	fmt.Fprintf(w, "  种子文件: %s\n", orDash(s.Names.SeedFile))
	fmt.Fprintf(w, "  名称服务: %s\n", orDash(s.Names.BaseURL))
	fmt.Fprintf(w, "  缓存 TTL: %ds\n", s.Names.TTL)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
