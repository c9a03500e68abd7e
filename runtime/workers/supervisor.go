package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"realtime-core/contract"
	"realtime-core/errors"

	"github.com/jonboulle/clockwork"
)

const defaultRestartDelay = 200 * time.Millisecond

// Supervisor owns the lifetime of background workers: it runs each one in its
// own goroutine, restarts it after a panic or an error and stops them all when
// its context is cancelled.
type Supervisor struct {
	Cancel       context.CancelFunc
	wg           *sync.WaitGroup
	log          *slog.Logger
	clock        clockwork.Clock
	restartDelay time.Duration
	workers      []contract.Worker
}

var _ contract.ISupervisor = (*Supervisor)(nil)

func NewSupervisor(log *slog.Logger, clock clockwork.Clock, restartDelay time.Duration) *Supervisor {
	if restartDelay <= 0 {
		restartDelay = defaultRestartDelay
	}
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, clock: clock, restartDelay: restartDelay}
}

// Run blocks until every worker returned.
// Cancelling the parent stops the workers, so does Stop.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision. A worker returning nil is done for
// good; a panic or an error restarts it after the restart delay.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.restartDelay):
			}
		}
	}()
}

// Stop cancels every supervised worker. Run returns once they are all gone.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
