package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"kline/internal/logger"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// KafkaConfig 描述消费组参数。
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	Concurrency int
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource 以消费组方式拉取 tick 消息，手动提交 offset。
// 每个 reader 串行处理，分区内顺序得以保持。
type KafkaSource struct {
	cfg       KafkaConfig
	consumer  *Consumer
	newReader func(KafkaConfig) messageReader
	backoff   time.Duration
}

func NewKafkaSource(cfg KafkaConfig, consumer *Consumer) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &KafkaSource{
		cfg:       cfg,
		consumer:  consumer,
		newReader: newKafkaReader,
		backoff:   time.Second,
	}, nil
}

func newKafkaReader(cfg KafkaConfig) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
}

// Run 阻塞直到 ctx 取消。
func (s *KafkaSource) Run(ctx context.Context) error {
	logger.Infof("ingest: consuming topic=%s group=%s readers=%d brokers=%v",
		s.cfg.Topic, s.cfg.GroupID, s.cfg.Concurrency, s.cfg.Brokers)
	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Concurrency; i++ {
		reader := s.newReader(s.cfg)
		group.Go(func() error {
			defer reader.Close()
			return s.loop(gctx, i, reader)
		})
	}
	return group.Wait()
}

func (s *KafkaSource) loop(ctx context.Context, id int, reader messageReader) error {
	for {
		raw, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			logger.Warnf("ingest: reader %d fetch failed: %v", id, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.backoff):
			}
			continue
		}
		s.consumer.Handle(ctx, fromKafka(raw), kafkaAcker{reader: reader, raw: raw})
	}
}

func fromKafka(m kafka.Message) Message {
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
	}
}

type kafkaAcker struct {
	reader messageReader
	raw    kafka.Message
}

func (a kafkaAcker) Ack(ctx context.Context, _ Message) error {
	return a.reader.CommitMessages(ctx, a.raw)
}
