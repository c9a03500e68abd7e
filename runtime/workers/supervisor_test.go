package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"realtime-core/mocks"

	"github.com/jonboulle/clockwork"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	var calls atomic.Int32
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			calls.Add(1)
			panic("boom")
		}).
		AnyTimes()

	sup := NewSupervisor(log, clockwork.NewRealClock(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(ctx)
		close(done)
	}()

	// Then the worker is restarted after each panic
	req.Eventually(func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	// And cancelling the context stops the supervisor
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped after cancellation")
	}
}

func TestSupervisor_RestartOnError(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	// Given a worker failing once then finishing
	gomock.InOrder(
		workerMock.EXPECT().Run(gomock.Any()).Return(fmt.Errorf("redis unreachable")).Times(1),
		workerMock.EXPECT().Run(gomock.Any()).Return(nil).Times(1),
	)

	done := make(chan struct{})
	go func() {
		NewSupervisor(log, clockwork.NewRealClock(), time.Millisecond).Add(workerMock).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	// Given a worker running only once
	workerMock.EXPECT().Run(gomock.Any()).Return(nil).Times(1)

	sup := NewSupervisor(log, clockwork.NewRealClock(), 0)
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then supervisor detected a success and stopped
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_Restart_Waits_For_Delay(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	clock := clockwork.NewFakeClock()

	// Given a worker failing once then finishing
	var calls atomic.Int32
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(context.Context) error {
			if calls.Add(1) == 1 {
				return fmt.Errorf("redis unreachable")
			}
			return nil
		}).
		Times(2)

	done := make(chan struct{})
	go func() {
		NewSupervisor(log, clock, 5*time.Second).Add(workerMock).Run(context.Background())
		close(done)
	}()

	// When the supervisor waits on its restart delay
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req.NoError(clock.BlockUntilContext(ctx, 1))

	// Then nothing restarts before the delay elapsed
	clock.Advance(4 * time.Second)
	req.Never(func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	// And the worker runs again once it did
	clock.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have restarted the worker")
	}
	req.Equal(int32(2), calls.Load())
}
