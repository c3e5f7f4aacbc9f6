package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kline/internal/logger"
	"kline/internal/market"
	"kline/internal/store"
	"kline/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const insertBatchSize = 500

// Store 基于 gorm + 纯 Go sqlite 驱动的持久层实现。
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewFromDB(db)
}

func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	if err := db.AutoMigrate(&model.PricePointModel{}, &model.DiscardedMessageModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) InsertBatch(ctx context.Context, stockCode, marketID string, points []market.PricePoint) (int, error) {
	if !market.ValidKey(stockCode, marketID) || len(points) == 0 {
		return 0, nil
	}
	code := strings.TrimSpace(stockCode)
	mkt := strings.TrimSpace(marketID)
	rows := make([]model.PricePointModel, 0, len(points))
	for _, p := range points {
		rows = append(rows, model.PricePointModel{
			StockCode: code,
			MarketID:  mkt,
			Ts:        p.Ts,
			Open:      market.PlainString(p.Open),
			High:      market.PlainString(p.High),
			Low:       market.PlainString(p.Low),
			Close:     market.PlainString(p.Close),
			Vol:       p.Vol,
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return 0, fmt.Errorf("insert price points %s/%s: %w", code, mkt, err)
	}
	return len(rows), nil
}

// SelectRange 在 SQL 中完成过滤、排序与截断；同 ts 按自增 id 保持写入顺序。
func (s *Store) SelectRange(ctx context.Context, q market.RangeQuery) ([]market.PricePoint, error) {
	if q.Empty() {
		return nil, nil
	}
	tx := s.db.WithContext(ctx).
		Model(&model.PricePointModel{}).
		Where("stock_code = ? AND market_id = ?", strings.TrimSpace(q.StockCode), strings.TrimSpace(q.MarketID))
	if q.Start != nil {
		tx = tx.Where("ts >= ?", *q.Start)
	}
	if q.End != nil {
		tx = tx.Where("ts <= ?", *q.End)
	}
	tx = tx.Order("ts ASC").Order("id ASC")
	if q.Limit != nil {
		tx = tx.Limit(*q.Limit)
	}
	var rows []model.PricePointModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select price points: %w", err)
	}
	out := make([]market.PricePoint, 0, len(rows))
	for _, row := range rows {
		p, ok := toPoint(row)
		if !ok {
			logger.Warnf("sqlite: skip corrupt row id=%d %s/%s", row.ID, row.StockCode, row.MarketID)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func toPoint(row model.PricePointModel) (market.PricePoint, bool) {
	open, ok1 := market.ParsePrice(row.Open)
	high, ok2 := market.ParsePrice(row.High)
	low, ok3 := market.ParsePrice(row.Low)
	closePx, ok4 := market.ParsePrice(row.Close)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return market.PricePoint{}, false
	}
	return market.PricePoint{Ts: row.Ts, Open: open, High: high, Low: low, Close: closePx, Vol: row.Vol}, true
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
