package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"kline/internal/market"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Message 是一条待处理的行情消息（与具体 MQ 解耦）。
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// Acker 确认消息已处理完毕；Kafka 下即提交 offset。
type Acker interface {
	Ack(ctx context.Context, msg Message) error
}

// AckFunc 允许用普通函数实现 Acker。
type AckFunc func(ctx context.Context, msg Message) error

func (f AckFunc) Ack(ctx context.Context, msg Message) error { return f(ctx, msg) }

var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrMalformed    = errors.New("malformed json")
	ErrMissingData  = errors.New("missing stock_minute_data")
	ErrShape        = errors.New("unexpected message shape")
	ErrPersist      = errors.New("persist failed")
)

// DefaultTopic 是分钟行情的默认主题名。
const DefaultTopic = "timeline"

const envelopeSchema = `{
  "type": "object",
  "required": ["stock_minute_data"],
  "properties": {
    "topic": {"type": "string"},
    "stock_minute_data": {
      "type": "object",
      "required": ["stockCode", "marketId", "price", "date", "time"],
      "properties": {
        "stockCode": {"type": "string"},
        "marketId": {"type": "string"},
        "price": {"type": ["string", "number"]},
        "date": {"type": "string", "pattern": "^[0-9]{8}$"},
        "time": {"type": "string", "pattern": "^[0-9]{4}$"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func envelopeValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tick_envelope.json", strings.NewReader(envelopeSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("tick_envelope.json")
	})
	return schemaCompiled, schemaErr
}

type envelope struct {
	Topic string      `json:"topic"`
	Data  market.Tick `json:"stock_minute_data"`
}

// ParseTick 解析并校验 {"topic":"timeline","stock_minute_data":{...}}。
// 返回的错误可用 errors.Is 归类为 ErrEmptyPayload/ErrMalformed/ErrMissingData/ErrShape/market.ErrInvalidTick。
func ParseTick(payload []byte) (market.Tick, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return market.Tick{}, ErrEmptyPayload
	}
	if !gjson.ValidBytes(payload) {
		return market.Tick{}, ErrMalformed
	}
	data := gjson.GetBytes(payload, "stock_minute_data")
	if !data.Exists() || data.Type == gjson.Null {
		return market.Tick{}, ErrMissingData
	}

	schema, err := envelopeValidator()
	if err != nil {
		return market.Tick{}, fmt.Errorf("compile envelope schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return market.Tick{}, ErrMalformed
	}
	if err := schema.Validate(doc); err != nil {
		return market.Tick{}, fmt.Errorf("%w: %v", ErrShape, err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return market.Tick{}, fmt.Errorf("%w: %v", market.ErrInvalidTick, err)
	}
	if err := env.Data.Validate(); err != nil {
		return market.Tick{}, err
	}
	return env.Data, nil
}
