package names

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"kline/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SeedFile 映射名称种子文件。
type SeedFile struct {
	Names []SeedEntry `yaml:"names"`
}

type SeedEntry struct {
	StockCode string `yaml:"stock_code"`
	MarketID  string `yaml:"market_id"`
	Name      string `yaml:"name"`
}

// SeedTable 是本地维护的名称表，文件变更后自动重载。
type SeedTable struct {
	path string

	mu    sync.RWMutex
	table map[string]string
}

// NewSeedTable 读取种子文件；watch=true 时监听文件变化。
func NewSeedTable(path string, watch bool) (*SeedTable, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("seed table requires path")
	}
	t := &SeedTable{path: path, table: map[string]string{}}
	if err := t.reload(); err != nil {
		return nil, err
	}
	if watch {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read seed file failed: %w", err)
		}
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := t.reload(); err != nil {
				logger.Errorf("names: seed reload failed (%s): %v", evt.Name, err)
			}
		})
		v.WatchConfig()
	}
	return t, nil
}

func (t *SeedTable) reload() error {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read seed file failed: %w", err)
	}
	var file SeedFile
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return fmt.Errorf("parse seed file failed: %w", err)
		}
	}
	next := make(map[string]string, len(file.Names))
	for _, e := range file.Names {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		next[Key(e.StockCode, e.MarketID)] = name
	}
	t.mu.Lock()
	t.table = next
	t.mu.Unlock()
	logger.Infof("names: loaded %d seed names from %s", len(next), filepath.Base(t.path))
	return nil
}

func (t *SeedTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.table)
}

func (t *SeedTable) FetchName(_ context.Context, stockCode, marketID string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.table[Key(stockCode, marketID)], nil
}
