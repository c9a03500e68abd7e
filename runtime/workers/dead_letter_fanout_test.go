package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"realtime-core/domain/event"
	"realtime-core/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func failedRecord(id string) event.Record {
	return event.Record{ID: id, Name: "order.assigned", Status: event.StatusFailed, RetryCount: 3}
}

func TestDeadLetterFanout_Fanout(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	disk := mocks.NewMockDeadLetterSink(ctrl)
	stream := mocks.NewMockDeadLetterSink(ctrl)
	record := failedRecord("order.assigned-1-abc")

	// Given two sinks, one failing
	disk.EXPECT().Consume(gomock.Any(), record).Return(nil).Times(1)
	stream.EXPECT().Consume(gomock.Any(), record).Return(fmt.Errorf("stream unavailable")).Times(1)

	// When a record is fanned out
	// Then both sinks were called once
	NewDeadLetterFanout(log, nil, time.Second, disk, stream).Fanout(context.Background(), record)
}

func TestDeadLetterFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	slow := mocks.NewMockDeadLetterSink(ctrl)
	fast := mocks.NewMockDeadLetterSink(ctrl)

	// Given a sink blocking until its context expires
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.Record) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)
	fast.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	// When fanning out with a short timeout
	begin := time.Now()
	NewDeadLetterFanout(log, nil, 20*time.Millisecond, slow, fast).
		Fanout(context.Background(), failedRecord("order.assigned-2-def"))

	// Then the slow sink is abandoned at the timeout
	req.Less(time.Since(begin), time.Second)
}

func TestDeadLetterFanout_Run(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	sink := mocks.NewMockDeadLetterSink(ctrl)
	deadLetters := make(chan event.Record, 2)
	consumed := make(chan string, 2)

	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, record event.Record) error {
			consumed <- record.ID
			return nil
		}).Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewDeadLetterFanout(log, deadLetters, time.Second, sink).Run(ctx) }()

	// When two records are queued
	deadLetters <- failedRecord("a")
	deadLetters <- failedRecord("b")

	// Then they are archived in order
	for _, want := range []string{"a", "b"} {
		select {
		case got := <-consumed:
			req.Equal(want, got)
		case <-time.After(time.Second):
			req.Fail("Dead letter was not archived in time")
		}
	}

	// And the worker stops cleanly on cancellation
	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("Worker did not stop")
	}
}
