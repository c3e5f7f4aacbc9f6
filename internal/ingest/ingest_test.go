package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kline/internal/cache"
	"kline/internal/market"
	"kline/internal/repository"
	"kline/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const scenarioA = `{"topic":"timeline","stock_minute_data":{"stockCode":"300000","marketId":"33","price":"86.96","date":"20200101","time":"0700"}}`

type countingAcker struct {
	mu   sync.Mutex
	msgs []Message
}

func (a *countingAcker) Ack(_ context.Context, msg Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	return nil
}

func (a *countingAcker) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) RecordDiscard(ctx context.Context, topic string, partition int, offset int64, reason string, payload []byte) error {
	args := m.Called(ctx, topic, partition, offset, reason, payload)
	return args.Error(0)
}

type MockUpserter struct {
	mock.Mock
}

func (m *MockUpserter) UpsertBatch(ctx context.Context, s market.Series) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

type recordingTicks struct {
	mu    sync.Mutex
	calls int
	ctxOK bool
}

func (r *recordingTicks) WriteTick(ctx context.Context, _, _ string, _ int64, _ decimal.NullDecimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.ctxOK = ctx.Err() == nil
}

type failingStore struct{}

func (failingStore) InsertBatch(context.Context, string, string, []market.PricePoint) (int, error) {
	return 0, errors.New("disk full")
}

func (failingStore) SelectRange(context.Context, market.RangeQuery) ([]market.PricePoint, error) {
	return nil, nil
}

func (failingStore) Close() error { return nil }

type pipeline struct {
	cache    *cache.SeriesCache
	store    store.Store
	consumer *Consumer
}

func newPipeline(t *testing.T, st store.Store, policy DiscardPolicy) pipeline {
	t.Helper()
	sc := cache.NewSeriesCache(cache.NewMemoryClient(0), cache.Options{})
	repo := repository.New(sc, st, repository.Options{})
	return pipeline{
		cache:    sc,
		store:    st,
		consumer: NewConsumer(repo, sc, ConsumerOptions{Policy: policy}),
	}
}

func TestParseTick(t *testing.T) {
	tick, err := ParseTick([]byte(scenarioA))
	require.NoError(t, err)
	assert.Equal(t, "300000", tick.StockCode)
	assert.Equal(t, "33", tick.MarketID)
	ts, err := tick.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1577862000), ts)

	numeric, err := ParseTick([]byte(`{"topic":"timeline","stock_minute_data":{"stockCode":"1","marketId":"2","price":12.50,"date":"20200101","time":"0930"}}`))
	require.NoError(t, err)
	assert.Equal(t, "12.50", market.PlainString(numeric.Price.Decimal))

	cases := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", "   ", ErrEmptyPayload},
		{"malformed", `{"topic":`, ErrMalformed},
		{"missing data", `{"topic":"timeline"}`, ErrMissingData},
		{"null data", `{"topic":"timeline","stock_minute_data":null}`, ErrMissingData},
		{"bad date", `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":"1","date":"2020-01-01","time":"0930"}}`, ErrShape},
		{"bad time", `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":"1","date":"20200101","time":"930"}}`, ErrShape},
		{"null price", `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":null,"date":"20200101","time":"0930"}}`, ErrShape},
		{"missing price", `{"stock_minute_data":{"stockCode":"1","marketId":"2","date":"20200101","time":"0930"}}`, ErrShape},
		{"blank code", `{"stock_minute_data":{"stockCode":"  ","marketId":"2","price":"1","date":"20200101","time":"0930"}}`, market.ErrInvalidTick},
		{"non numeric price", `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":"abc","date":"20200101","time":"0930"}}`, market.ErrInvalidTick},
		{"impossible date", `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":"1","date":"20201340","time":"0930"}}`, market.ErrInvalidTick},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTick([]byte(tc.payload))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestConsumerPersistsTick(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, store.NewMemoryStore(), nil)
	acker := &countingAcker{}

	out := p.consumer.Handle(ctx, Message{Topic: "timeline", Value: []byte(scenarioA)}, acker)
	assert.Equal(t, OutcomePersisted, out)
	assert.Equal(t, 1, acker.count())

	s := p.cache.GetRange(ctx, market.RangeQuery{
		StockCode: "300000", MarketID: "33", Start: market.Int64(1577862000), End: market.Int64(1577862000),
	})
	require.Len(t, s.Points, 1)
	pt := s.Points[0]
	assert.Equal(t, int64(1577862000), pt.Ts)
	assert.Equal(t, "86.96", market.PlainString(pt.Close))
	assert.True(t, pt.Open.Equal(pt.High) && pt.High.Equal(pt.Low))
	assert.Equal(t, int64(0), pt.Vol)

	stored, err := p.store.SelectRange(ctx, market.RangeQuery{StockCode: "300000", MarketID: "33"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestConsumerDiscardsMissingData(t *testing.T) {
	ctx := context.Background()
	sink := new(MockSink)
	sink.On("RecordDiscard", mock.Anything, "timeline", 3, int64(42), ErrMissingData.Error(), []byte(`{"topic":"timeline"}`)).Return(nil)
	p := newPipeline(t, store.NewMemoryStore(), AckPolicy{Sinks: []DiscardSink{sink}})
	acker := &countingAcker{}

	out := p.consumer.Handle(ctx, Message{Topic: "timeline", Partition: 3, Offset: 42, Value: []byte(`{"topic":"timeline"}`)}, acker)
	assert.Equal(t, OutcomeDiscarded, out)
	assert.Equal(t, 1, acker.count())
	sink.AssertExpectations(t)

	stored, err := p.store.SelectRange(ctx, market.RangeQuery{StockCode: "300000", MarketID: "33"})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestConsumerDiscardsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, failingStore{}, nil)
	acker := &countingAcker{}

	out := p.consumer.Handle(ctx, Message{Value: []byte(scenarioA)}, acker)
	assert.Equal(t, OutcomeDiscarded, out)
	assert.Equal(t, 1, acker.count())

	s := p.cache.GetRange(ctx, market.RangeQuery{StockCode: "300000", MarketID: "33"})
	assert.True(t, s.Empty(), "minute index is not written when the store rejects the batch")
}

func TestConsumerDiscardsInvalidTicksWithoutPersisting(t *testing.T) {
	payloads := map[string]string{
		"bad date":      `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":"1","date":"2020-01-01","time":"0930"}}`,
		"bad time":      `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":"1","date":"20200101","time":"930"}}`,
		"null price":    `{"stock_minute_data":{"stockCode":"1","marketId":"2","price":null,"date":"20200101","time":"0930"}}`,
		"missing price": `{"stock_minute_data":{"stockCode":"1","marketId":"2","date":"20200101","time":"0930"}}`,
		"blank code":    `{"stock_minute_data":{"stockCode":"  ","marketId":"2","price":"1","date":"20200101","time":"0930"}}`,
		"missing data":  `{"topic":"timeline"}`,
		"malformed":     `{"topic":`,
		"empty":         ``,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			repo := new(MockUpserter)
			ticks := &recordingTicks{}
			sink := new(MockSink)
			sink.On("RecordDiscard", mock.Anything, "timeline", 0, int64(7), mock.Anything, mock.Anything).Return(nil).Once()
			c := NewConsumer(repo, ticks, ConsumerOptions{Policy: AckPolicy{Sinks: []DiscardSink{sink}}})
			acker := &countingAcker{}

			out := c.Handle(context.Background(), Message{Topic: "timeline", Offset: 7, Value: []byte(payload)}, acker)
			assert.Equal(t, OutcomeDiscarded, out)
			assert.Equal(t, 1, acker.count())
			repo.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
			assert.Zero(t, ticks.calls)
			sink.AssertExpectations(t)
		})
	}
}

func TestConsumerKeepsTickStoredAfterSlowUpsert(t *testing.T) {
	repo := new(MockUpserter)
	repo.On("UpsertBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil).Once()
	ticks := &recordingTicks{}
	sink := new(MockSink)
	c := NewConsumer(repo, ticks, ConsumerOptions{
		Policy:        AckPolicy{Sinks: []DiscardSink{sink}},
		HandleTimeout: 10 * time.Millisecond,
	})
	acker := &countingAcker{}

	out := c.Handle(context.Background(), Message{Value: []byte(scenarioA)}, acker)
	assert.Equal(t, OutcomePersisted, out)
	assert.Equal(t, 1, acker.count())
	assert.Equal(t, 1, ticks.calls)
	assert.True(t, ticks.ctxOK, "minute index write gets a live context")
	repo.AssertExpectations(t)
	sink.AssertNotCalled(t, "RecordDiscard", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumerRedeliveryAppends(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, store.NewMemoryStore(), nil)
	acker := &countingAcker{}

	p.consumer.Handle(ctx, Message{Value: []byte(scenarioA)}, acker)
	p.consumer.Handle(ctx, Message{Value: []byte(scenarioA)}, acker)
	assert.Equal(t, 2, acker.count())

	stored, err := p.store.SelectRange(ctx, market.RangeQuery{StockCode: "300000", MarketID: "33"})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestHandleSeries(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, store.NewMemoryStore(), nil)

	require.NoError(t, p.consumer.HandleSeries(ctx, market.Series{StockCode: "", MarketID: "1"}))
	tick, err := ParseTick([]byte(scenarioA))
	require.NoError(t, err)
	series, err := tick.Series()
	require.NoError(t, err)
	require.NoError(t, p.consumer.HandleSeries(ctx, series))

	stored, err := p.store.SelectRange(ctx, market.RangeQuery{StockCode: "300000", MarketID: "33"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestKafkaSourceCommitsEveryMessage(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(), nil)
	src, err := NewKafkaSource(KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "kline-service"}, p.consumer)
	require.NoError(t, err)

	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "timeline", Offset: 1, Value: []byte(scenarioA)},
		{Topic: "timeline", Offset: 2, Value: []byte(`{"topic":"timeline"}`)},
		{Topic: "timeline", Offset: 3, Value: []byte(`garbage`)},
	}}
	src.newReader = func(KafkaConfig) messageReader { return reader }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	assert.Eventually(t, func() bool { return reader.commits() == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, reader.closed)

	stored, err := p.store.SelectRange(context.Background(), market.RangeQuery{StockCode: "300000", MarketID: "33"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestNewKafkaSourceRequiresBrokers(t *testing.T) {
	_, err := NewKafkaSource(KafkaConfig{}, nil)
	assert.Error(t, err)
}

func TestFileIngestor(t *testing.T) {
	ctx := context.Background()
	sc := cache.NewSeriesCache(cache.NewMemoryClient(0), cache.Options{})
	f := NewFileIngestor(sc)

	dir := t.TempDir()
	path := filepath.Join(dir, "ticks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"stockCode":"300033","marketId":"33","price":"86.96","date":"20200101","time":"0700"},
		{"stockCode":"300033","marketId":"33","price":87.5,"date":"20200101","time":"0701"},
		{"stockCode":"","marketId":"33","price":"1","date":"20200101","time":"0702"},
		{"stockCode":"300033","marketId":"33","price":null,"date":"20200101","time":"0703"},
		{"stockCode":"300033","marketId":"33","price":"1","date":"2020","time":"0704"},
		"junk"
	]`), 0o644))

	res, err := f.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, LoadResult{OK: 2, Skip: 4}, res)

	s := sc.GetRange(ctx, market.RangeQuery{StockCode: "300033", MarketID: "33"})
	require.Len(t, s.Points, 2)
	assert.Equal(t, int64(1577862000), s.Points[0].Ts)

	missing, err := f.Load(ctx, filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Zero(t, missing.OK)

	obj := filepath.Join(dir, "obj.json")
	require.NoError(t, os.WriteFile(obj, []byte(`{"a":1}`), 0o644))
	notArray, err := f.Load(ctx, obj)
	require.NoError(t, err)
	assert.Zero(t, notArray.OK)
}
