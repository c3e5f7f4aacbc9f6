package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"kline/internal/pkg/text"
	"kline/internal/store/model"

	"gorm.io/datatypes"
)

// DiscardedMessage 是 discarded_messages 表的读取视图。
type DiscardedMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Reason    string
	Payload   string
}

const maxReasonLen = 512

// RecordDiscard 保存一条被丢弃的消息；非 JSON 的载荷以字符串形式保存。
func (s *Store) RecordDiscard(ctx context.Context, topic string, partition int, offset int64, reason string, payload []byte) error {
	raw := payload
	if !json.Valid(raw) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		raw = quoted
	}
	row := model.DiscardedMessageModel{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Reason:    text.Truncate(reason, maxReasonLen),
		Payload:   datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record discard: %w", err)
	}
	return nil
}

// RecentDiscards 按写入倒序返回最近的 limit 条。
func (s *Store) RecentDiscards(ctx context.Context, limit int) ([]DiscardedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.DiscardedMessageModel
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]DiscardedMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, DiscardedMessage{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Reason:    r.Reason,
			Payload:   string(r.Payload),
		})
	}
	return out, nil
}
