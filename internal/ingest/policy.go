package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kline/internal/logger"
	"kline/internal/pkg/text"

	"github.com/segmentio/kafka-go"
)

const payloadPreview = 256

// DiscardPolicy 决定一条无法处理的消息如何收尾。
// 默认实现记录后确认，保证坏消息不会阻塞分区。
type DiscardPolicy interface {
	Discard(ctx context.Context, msg Message, reason error, acker Acker) error
}

// DiscardSink 保存被丢弃的消息（sqlite 表、死信主题等）。
type DiscardSink interface {
	RecordDiscard(ctx context.Context, topic string, partition int, offset int64, reason string, payload []byte) error
}

// AckPolicy 先把消息交给各个 sink，再无条件确认；sink 失败只记日志。
type AckPolicy struct {
	Sinks []DiscardSink
}

func (p AckPolicy) Discard(ctx context.Context, msg Message, reason error, acker Acker) error {
	why := "unknown"
	if reason != nil {
		why = reason.Error()
	}
	logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset).
		Warn("ingest: discard message", "reason", why, "payload", text.Truncate(string(msg.Value), payloadPreview))
	for _, sink := range p.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.RecordDiscard(ctx, msg.Topic, msg.Partition, msg.Offset, why, msg.Value); err != nil {
			logger.Warnf("ingest: discard sink failed for offset %d: %v", msg.Offset, err)
		}
	}
	if acker == nil {
		return nil
	}
	return acker.Ack(ctx, msg)
}

// DeadLetterWriter 把被丢弃的消息转发到死信主题。
type DeadLetterWriter struct {
	writer *kafka.Writer
	topic  string
}

func NewDeadLetterWriter(brokers []string, topic string) *DeadLetterWriter {
	return &DeadLetterWriter{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
			MaxAttempts:            3,
			WriteTimeout:           5 * time.Second,
		},
		topic: topic,
	}
}

type deadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int       `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalValue     string    `json:"original_value"`
	FailureReason     string    `json:"failure_reason"`
	FailedAt          time.Time `json:"failed_at"`
}

func (w *DeadLetterWriter) RecordDiscard(ctx context.Context, topic string, partition int, offset int64, reason string, payload []byte) error {
	body, err := json.Marshal(deadLetter{
		OriginalTopic:     topic,
		OriginalPartition: partition,
		OriginalOffset:    offset,
		OriginalValue:     string(payload),
		FailureReason:     reason,
		FailedAt:          time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		return fmt.Errorf("dead letter %s: %w", w.topic, err)
	}
	return nil
}

func (w *DeadLetterWriter) Close() error {
	return w.writer.Close()
}
