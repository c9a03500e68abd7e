package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"realtime-core/domain/event"

	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifier_Rejects_Missing_Channel(t *testing.T) {
	req := require.New(t)
	notifier := NewRedisNotifier(nil, "realtime_notifications", 0, logs.GetLoggerFromLevel(slog.LevelDebug))

	req.Equal("realtime_notifications:sms", notifier.Stream("sms"))
	req.Error(notifier.SendThroughChannel(context.Background(), "", event.Notification{Content: "Table 12 is ready"}))
}

// Needs a reachable redis, e.g. REDIS_ADDR=localhost:6379
func TestRedisNotifier_SendThroughChannel(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	req := require.New(t)
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	notifier := NewRedisNotifier(client, "realtime_notifications_test", 100, logs.GetLoggerFromLevel(slog.LevelDebug))
	stream := notifier.Stream("push")
	defer client.Del(ctx, stream)

	// Given a push notification for one recipient
	notification := event.Notification{Channel: "push", Content: "Order 99 is ready", Recipient: "7"}

	// When it is sent
	req.NoError(notifier.SendThroughChannel(ctx, "push", notification))

	// Then the channel stream holds it
	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	req.NoError(err)
	req.Len(entries, 1)
	req.Equal("7", entries[0].Values["recipient"])
	var decoded event.Notification
	req.NoError(json.Unmarshal([]byte(entries[0].Values["notification"].(string)), &decoded))
	req.Equal(notification, decoded)
}
