package sink

import (
	"context"
	"fmt"
	"log/slog"

	"realtime-core/contract"
	"realtime-core/domain/event"
	"realtime-core/repositories"

	"github.com/redis/go-redis/v9"
	"google.golang.org/protobuf/encoding/protojson"
)

var _ contract.DeadLetterSink = RedisStreamSink{}

// RedisStreamSink appends dead letters to a redis stream so other services
// can replay or alert on them. The stream is capped around maxLen entries.
type RedisStreamSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
	log    *slog.Logger
}

func NewRedisStreamSink(client redis.Cmdable, stream string, maxLen int64, log *slog.Logger) RedisStreamSink {
	return RedisStreamSink{client: client, stream: stream, maxLen: maxLen, log: log}
}

func (s RedisStreamSink) Name() string { return "redis-stream" }

func (s RedisStreamSink) Consume(ctx context.Context, record event.Record) error {
	msg, err := repositories.EncodeRecord(record)
	if err != nil {
		return err
	}
	payload, err := protojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", record.ID, err)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: StreamValues(record, payload),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", s.stream, err)
	}
	s.log.Debug("Dead letter sent to stream", "event_id", record.ID, "stream", s.stream, "entry", id)
	return nil
}

// StreamValues are the flat fields of a stream entry: enough to filter on
// without decoding, plus the full record as protojson.
func StreamValues(record event.Record, payload []byte) map[string]any {
	return map[string]any{
		"event_id":    record.ID,
		"event_name":  record.Name,
		"room":        string(record.Payload.Room),
		"retry_count": record.RetryCount,
		"error":       record.Error,
		"payload":     string(payload),
	}
}
