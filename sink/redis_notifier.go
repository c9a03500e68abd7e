package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"realtime-core/contract"
	"realtime-core/domain/event"

	"github.com/redis/go-redis/v9"
)

var _ contract.NotificationDispatcher = RedisNotifier{}

// RedisNotifier hands notifications to the push, SMS and email adapters
// through one redis stream per channel, "<prefix>:<channel>".
type RedisNotifier struct {
	client redis.Cmdable
	prefix string
	maxLen int64
	log    *slog.Logger
}

func NewRedisNotifier(client redis.Cmdable, prefix string, maxLen int64, log *slog.Logger) RedisNotifier {
	return RedisNotifier{client: client, prefix: prefix, maxLen: maxLen, log: log}
}

func (n RedisNotifier) Stream(channelType string) string {
	return n.prefix + ":" + channelType
}

func (n RedisNotifier) SendThroughChannel(ctx context.Context, channelType string, notification event.Notification) error {
	if channelType == "" {
		return fmt.Errorf("notification without channel")
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encoding notification for %s: %w", channelType, err)
	}
	stream := n.Stream(channelType)
	id, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: n.maxLen,
		Approx: n.maxLen > 0,
		Values: map[string]any{
			"recipient":    notification.Recipient,
			"notification": string(body),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd notification (stream=%s): %w", stream, err)
	}
	n.log.Debug("Notification queued", "channel", channelType, "stream", stream, "entry", id)
	return nil
}
