package model

import (
	"gorm.io/datatypes"
)

// PricePointModel 对应 price_points 表；价格以 TEXT 保存以保留精度。
type PricePointModel struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	StockCode string `gorm:"column:stock_code;not null;index:idx_price_points_key_ts,priority:1"`
	MarketID  string `gorm:"column:market_id;not null;index:idx_price_points_key_ts,priority:2"`
	Ts        int64  `gorm:"column:ts;not null;index:idx_price_points_key_ts,priority:3"`
	Open      string `gorm:"column:open;type:text;not null"`
	High      string `gorm:"column:high;type:text;not null"`
	Low       string `gorm:"column:low;type:text;not null"`
	Close     string `gorm:"column:close;type:text;not null"`
	Vol       int64  `gorm:"column:vol;not null"`
}

func (PricePointModel) TableName() string { return "price_points" }

// DiscardedMessageModel 记录被丢弃的行情消息，便于事后排查。
type DiscardedMessageModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Topic         string         `gorm:"column:topic;index"`
	Partition     int            `gorm:"column:kafka_partition"`
	Offset        int64          `gorm:"column:kafka_offset"`
	Reason        string         `gorm:"column:reason"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	CreatedAtUnix int64          `gorm:"column:created_at;autoCreateTime"`
}

func (DiscardedMessageModel) TableName() string { return "discarded_messages" }
