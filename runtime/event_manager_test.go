package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"
	"realtime-core/mocks"

	"github.com/jonboulle/clockwork"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var start = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestEventManager() (*EventManager, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(start)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewEventManager(log, clock, DefaultRetryPolicy()), clock
}

// waitForRecord polls until the record reaches the given status and retry count.
func waitForRecord(t *testing.T, manager *EventManager, id string, status event.Status, retryCount int) event.Record {
	t.Helper()
	var record event.Record
	require.Eventually(t, func() bool {
		r, ok := manager.GetEventStatus(id)
		if !ok {
			return false
		}
		record = r
		return r.Status == status && r.RetryCount == retryCount
	}, 2*time.Second, time.Millisecond)
	return record
}

func TestEventManager_Emit_Isolates_Failing_Handlers(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestEventManager()
	var calls []string

	// Given three handlers, the first returns an error and the second panics
	manager.On("order.updated", event.HandlerFunc(func(data any) error {
		calls = append(calls, "first")
		return fmt.Errorf("boom")
	}))
	manager.On("order.updated", event.HandlerFunc(func(data any) error {
		calls = append(calls, "second")
		panic("handler exploded")
	}))
	manager.On("order.updated", event.HandlerFunc(func(data any) error {
		calls = append(calls, fmt.Sprintf("third:%v", data))
		return nil
	}))

	// When the event is emitted
	req.NotPanics(func() { manager.Emit("order.updated", 42) })

	// Then every handler ran in registration order
	req.Equal([]string{"first", "second", "third:42"}, calls)
}

func TestEventManager_Emit_Same_Handler_Twice(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestEventManager()
	count := 0
	handler := event.HandlerFunc(func(any) error {
		count++
		return nil
	})

	manager.On("table.freed", handler)
	manager.On("table.freed", handler)
	manager.Emit("table.freed", nil)

	req.Equal(2, count)
}

func TestEventManager_Emit_Without_Listener(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestEventManager()

	req.NotPanics(func() { manager.Emit("nobody.listens", map[string]any{"a": 1}) })
}

func TestEventManager_HandleEvent_Broadcasts_And_Completes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broadcaster := mocks.NewMockBroadcaster(ctrl)
	manager, _ := newTestEventManager()
	manager.SetBroadcaster(broadcaster)
	roomID := domain.NewRoomID("order-processing", "order-42")

	// Given the transport accepts the broadcast
	broadcaster.EXPECT().
		BroadcastToRoom(gomock.Any(), roomID, event.Outbound{Type: "order.ready", Data: map[string]any{"orderId": "42"}}).
		Return(nil).
		Times(1)

	// When the event is handled
	id := manager.HandleEvent(context.Background(), "e-ready", "order.ready", event.Payload{
		Room: roomID,
		Data: map[string]any{"orderId": "42"},
	}, nil)

	// Then it completed on the first attempt
	req.Equal("e-ready", id)
	record, ok := manager.GetEventStatus(id)
	req.True(ok)
	req.Equal(event.StatusCompleted, record.Status)
	req.Zero(record.RetryCount)
	req.Equal(start, record.CompletedAt)
	req.Empty(manager.GetPendingEvents())
	req.Empty(manager.GetFailedEvents())
}

func TestEventManager_HandleEvent_Generates_ID(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestEventManager()

	id := manager.HandleEvent(context.Background(), "", "staff.shift.started", event.Payload{}, nil)

	req.Contains(id, fmt.Sprintf("staff.shift.started-%d-", start.UnixMilli()))
	record, ok := manager.GetEventStatus(id)
	req.True(ok)
	req.Equal(event.StatusCompleted, record.Status)
}

func TestEventManager_HandleEvent_Forwards_Notification(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockNotificationDispatcher(ctrl)
	manager, _ := newTestEventManager()
	manager.SetNotificationService(dispatcher)
	notification := event.Notification{
		Channel:   "sms",
		Content:   "Your driver is arriving",
		Recipient: "customer-12",
	}

	// Given the dispatcher accepts the notification
	dispatcher.EXPECT().SendThroughChannel(gomock.Any(), "sms", notification).Return(nil).Times(1)

	// When an event carrying a notification is handled
	manager.HandleEvent(context.Background(), "e-sms", "driver.arriving", event.Payload{Notification: &notification}, nil)

	// Then it is completed
	record, _ := manager.GetEventStatus("e-sms")
	req.Equal(event.StatusCompleted, record.Status)
}

func TestEventManager_Retry_Schedule_Then_Dead_Letter(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	origin := mocks.NewMockConnection(ctrl)
	manager, clock := newTestEventManager()
	deadLetters := make(chan event.Record, 1)
	manager.SetDeadLetterQueue(deadLetters)
	attempts := make(chan struct{}, 10)

	// Given a dispatch that always fails
	manager.Route("payment.failed", func(ctx context.Context, record event.Record) error {
		attempts <- struct{}{}
		return fmt.Errorf("payment gateway unreachable")
	})
	// And an origin connection expecting one terminal failure signal
	sent := make(chan event.Outbound, 1)
	origin.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, out event.Outbound) error {
			sent <- out
			return nil
		}).
		Times(1)

	// When the event is handled
	manager.HandleEvent(context.Background(), "e1", "payment.failed", event.Payload{Data: map[string]any{"amount": 12.5}}, origin)

	// Then retries are scheduled after 1s, 2s and 4s
	now := start
	for i, backoff := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		record := waitForRecord(t, manager, "e1", event.StatusRetryPending, i+1)
		req.Equal(now.Add(backoff), record.NextRetryAt)
		req.Len(manager.GetPendingEvents(), 1)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		req.NoError(clock.BlockUntilContext(ctx, 1))
		cancel()

		// Nothing happens before the backoff elapsed
		clock.Advance(backoff - time.Millisecond)
		record, _ = manager.GetEventStatus("e1")
		req.Equal(event.StatusRetryPending, record.Status)

		clock.Advance(time.Millisecond)
		now = now.Add(backoff)
	}

	// And the event fails for good after the third retry
	record := waitForRecord(t, manager, "e1", event.StatusFailed, 3)
	req.Equal(now, record.FailedAt)
	req.Contains(record.Error, errors.ErrEventDeliveryFailed.Error())
	req.Contains(record.Error, "payment gateway unreachable")
	req.Len(attempts, 4)

	failed := manager.GetFailedEvents()
	req.Len(failed, 1)
	req.Equal("e1", failed[0].ID)
	req.Equal(3, failed[0].RetryCount)
	req.Empty(manager.GetPendingEvents())

	// And the record reached the dead letter queue
	select {
	case archived := <-deadLetters:
		req.Equal("e1", archived.ID)
		req.Equal(event.StatusFailed, archived.Status)
		req.Equal(now, archived.DeadLetteredAt)
	case <-time.After(time.Second):
		req.Fail("record was not dead-lettered")
	}

	// And the origin was told once
	select {
	case out := <-sent:
		req.Equal(event.EventFailedType, out.Type)
		failure, ok := out.Data.(event.EventFailed)
		req.True(ok)
		req.Equal("e1", failure.EventID)
		req.Equal(3, failure.RetryCount)
	case <-time.After(time.Second):
		req.Fail("origin was not notified")
	}

	// And the terminal state is stable
	clock.Advance(time.Minute)
	snapshot, _ := manager.GetEventStatus("e1")
	req.Equal(record.Status, snapshot.Status)
	req.Equal(record.RetryCount, snapshot.RetryCount)
	req.Len(attempts, 4)
}

func TestEventManager_Retry_Succeeds_On_Second_Attempt(t *testing.T) {
	req := require.New(t)
	manager, clock := newTestEventManager()
	failures := 1

	manager.Route("booking.confirmed", func(ctx context.Context, record event.Record) error {
		if failures > 0 {
			failures--
			return fmt.Errorf("transient")
		}
		return nil
	})

	manager.HandleEvent(context.Background(), "e2", "booking.confirmed", event.Payload{}, nil)
	waitForRecord(t, manager, "e2", event.StatusRetryPending, 1)

	clock.Advance(time.Second)

	record := waitForRecord(t, manager, "e2", event.StatusCompleted, 1)
	req.Equal(start.Add(time.Second), record.CompletedAt)
	req.Equal(time.Second, record.Elapsed())
	req.True(record.NextRetryAt.IsZero())
}

func TestEventManager_Room_Without_Broadcaster_Retries(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestEventManager()

	manager.HandleEvent(context.Background(), "e3", "zone.updated", event.Payload{Room: "zone:north"}, nil)

	record := waitForRecord(t, manager, "e3", event.StatusRetryPending, 1)
	req.Equal(start.Add(time.Second), record.NextRetryAt)
}

func TestEventManager_Panicking_Route_Is_Retried(t *testing.T) {
	manager, _ := newTestEventManager()
	manager.Route("order.paid", func(context.Context, event.Record) error {
		panic("nil map")
	})

	require.NotPanics(t, func() {
		manager.HandleEvent(context.Background(), "e4", "order.paid", event.Payload{}, nil)
	})
	waitForRecord(t, manager, "e4", event.StatusRetryPending, 1)
}

func TestEventManager_Cancel_Pending_Retry(t *testing.T) {
	req := require.New(t)
	manager, clock := newTestEventManager()
	deadLetters := make(chan event.Record, 1)
	manager.SetDeadLetterQueue(deadLetters)
	attempts := 0
	manager.Route("order.refund", func(context.Context, event.Record) error {
		attempts++
		return fmt.Errorf("refund service down")
	})

	// Given an event waiting for its first retry
	manager.HandleEvent(context.Background(), "e5", "order.refund", event.Payload{}, nil)
	waitForRecord(t, manager, "e5", event.StatusRetryPending, 1)

	// When it is cancelled
	req.NoError(manager.Cancel(context.Background(), "e5"))

	// Then it is failed and archived, and the timer never fires
	record, _ := manager.GetEventStatus("e5")
	req.Equal(event.StatusFailed, record.Status)
	req.Contains(record.Error, errors.ErrEventCancelled.Error())
	req.Len(deadLetters, 1)

	clock.Advance(time.Minute)
	req.Equal(1, attempts)

	// And settled or unknown events cannot be cancelled
	req.ErrorIs(manager.Cancel(context.Background(), "e5"), errors.ErrEventNotPending)
	req.ErrorIs(manager.Cancel(context.Background(), "unknown"), errors.ErrEventNotFound)
}

func TestEventManager_Settled_Record_Is_Not_Processed_Again(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestEventManager()
	attempts := 0
	manager.Route("order.delivered", func(context.Context, event.Record) error {
		attempts++
		return nil
	})

	manager.HandleEvent(context.Background(), "e6", "order.delivered", event.Payload{}, nil)
	req.Equal(1, attempts)

	// A stray attempt on a completed record is a no-op
	req.NoError(manager.processEvent(context.Background(), "e6"))
	manager.handleEventError(context.Background(), "e6", fmt.Errorf("late failure"))
	req.Equal(1, attempts)
	record, _ := manager.GetEventStatus("e6")
	req.Equal(event.StatusCompleted, record.Status)
	req.Zero(record.RetryCount)
}

func TestEventManager_Ignores_Duplicate_In_Flight_ID(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestEventManager()
	attempts := 0
	manager.Route("order.created", func(context.Context, event.Record) error {
		attempts++
		return fmt.Errorf("down")
	})

	manager.HandleEvent(context.Background(), "e7", "order.created", event.Payload{}, nil)
	waitForRecord(t, manager, "e7", event.StatusRetryPending, 1)

	// A second delivery with the same id while retries are pending is ignored
	manager.HandleEvent(context.Background(), "e7", "order.created", event.Payload{}, nil)

	req.Equal(1, attempts)
	record, _ := manager.GetEventStatus("e7")
	req.Equal(1, record.RetryCount)
}

func TestEventManager_Prune_Settled_Records(t *testing.T) {
	req := require.New(t)
	manager, clock := newTestEventManager()
	manager.Route("never.works", func(context.Context, event.Record) error {
		return fmt.Errorf("down")
	})

	// Given one completed and one pending event
	manager.HandleEvent(context.Background(), "done", "works", event.Payload{}, nil)
	manager.HandleEvent(context.Background(), "pending", "never.works", event.Payload{}, nil)
	clock.Advance(10 * time.Millisecond)

	// When pruning everything settled before now
	pruned := manager.Prune(clock.Now())

	// Then only the completed record is evicted
	req.Equal(1, pruned)
	_, ok := manager.GetEventStatus("done")
	req.False(ok)
	_, ok = manager.GetEventStatus("pending")
	req.True(ok)
}

func TestEventManager_Cancel_During_Delivery_Then_Resubmit(t *testing.T) {
	req := require.New(t)
	manager, clock := newTestEventManager()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	// Given a dispatch whose first call hangs until released, and which fails every time
	manager.Route("courier.assigned", func(context.Context, event.Record) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return fmt.Errorf("courier service down")
	})
	firstDone := make(chan struct{})
	go func() {
		manager.HandleEvent(context.Background(), "x", "courier.assigned", event.Payload{}, nil)
		close(firstDone)
	}()
	<-entered

	// When it is cancelled mid delivery and the same id is submitted again
	req.NoError(manager.Cancel(context.Background(), "x"))
	manager.HandleEvent(context.Background(), "x", "courier.assigned", event.Payload{}, nil)
	waitForRecord(t, manager, "x", event.StatusRetryPending, 1)

	// And the cancelled delivery finally fails
	close(release)
	<-firstDone

	// Then the new lifecycle is untouched by the stale failure
	record, _ := manager.GetEventStatus("x")
	req.Equal(event.StatusRetryPending, record.Status)
	req.Equal(1, record.RetryCount)

	// And it still gets its own three retries, on a single timer chain
	for i, backoff := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		req.NoError(clock.BlockUntilContext(ctx, 1))
		cancel()
		clock.Advance(backoff)
		if i < 2 {
			waitForRecord(t, manager, "x", event.StatusRetryPending, i+2)
		}
	}
	record = waitForRecord(t, manager, "x", event.StatusFailed, 3)
	req.NotContains(record.Error, errors.ErrEventCancelled.Error())
	req.Equal(int32(5), calls.Load())
}
