package ingest

import (
	"context"
	"fmt"
	"time"

	"kline/internal/logger"
	"kline/internal/market"

	"github.com/shopspring/decimal"
)

const defaultHandleTimeout = 2 * time.Second

// Upserter 是 Repository 的写入能力。
type Upserter interface {
	UpsertBatch(ctx context.Context, s market.Series) error
}

// TickWriter 是分钟索引的写入能力。
type TickWriter interface {
	WriteTick(ctx context.Context, stockCode, marketID string, ts int64, price decimal.NullDecimal)
}

// Outcome 是一条消息的最终状态。
type Outcome int

const (
	OutcomePersisted Outcome = iota
	OutcomeDiscarded
)

func (o Outcome) String() string {
	if o == OutcomePersisted {
		return "persisted"
	}
	return "discarded"
}

type ConsumerOptions struct {
	Policy        DiscardPolicy
	HandleTimeout time.Duration
}

// Consumer 把 tick 消息转换为点并写入存储；每条消息恰好确认一次。
type Consumer struct {
	repo    Upserter
	ticks   TickWriter
	policy  DiscardPolicy
	timeout time.Duration
}

func NewConsumer(repo Upserter, ticks TickWriter, opts ConsumerOptions) *Consumer {
	if opts.Policy == nil {
		opts.Policy = AckPolicy{}
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = defaultHandleTimeout
	}
	return &Consumer{repo: repo, ticks: ticks, policy: opts.Policy, timeout: opts.HandleTimeout}
}

// Handle 执行 RECEIVED→PARSED→VALIDATED→PERSISTED→ACKNOWLEDGED，
// 任一步失败转入 DISCARDED 并交由 DiscardPolicy 确认。
func (c *Consumer) Handle(ctx context.Context, msg Message, acker Acker) Outcome {
	tick, err := ParseTick(msg.Value)
	if err != nil {
		c.discard(ctx, msg, err, acker)
		return OutcomeDiscarded
	}
	if err := c.persist(ctx, tick); err != nil {
		c.discard(ctx, msg, err, acker)
		return OutcomeDiscarded
	}
	if acker != nil {
		if err := acker.Ack(ctx, msg); err != nil {
			logger.Warnf("ingest: ack offset %d failed: %v", msg.Offset, err)
		}
	}
	logger.Debugf("ingest: persisted %s/%s %s %s price=%s",
		tick.StockCode, tick.MarketID, tick.Date, tick.Time, market.PlainString(tick.Price.Decimal))
	return OutcomePersisted
}

func (c *Consumer) persist(ctx context.Context, tick market.Tick) error {
	series, err := tick.Series()
	if err != nil {
		return err
	}
	ts := series.Points[0].Ts

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.repo.UpsertBatch(opCtx, series)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	// 已落库的 tick 不再因超时被丢弃；分钟索引使用调用方的 ctx。
	c.ticks.WriteTick(ctx, series.StockCode, series.MarketID, ts, tick.Price)
	return nil
}

func (c *Consumer) discard(ctx context.Context, msg Message, reason error, acker Acker) {
	if err := c.policy.Discard(ctx, msg, reason, acker); err != nil {
		logger.Warnf("ingest: discard offset %d failed: %v", msg.Offset, err)
	}
}

// HandleSeries 是绕过消息格式的直接写入路径，供批量导入使用。
func (c *Consumer) HandleSeries(ctx context.Context, s market.Series) error {
	if !s.HasKey() || s.Empty() {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.repo.UpsertBatch(opCtx, s)
}
