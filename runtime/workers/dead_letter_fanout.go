package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"realtime-core/contract"
	"realtime-core/domain/event"
)

// DeadLetterFanout drains the records the event manager gave up on and hands
// each one to every archive sink. A slow or failing sink only loses its own
// copy: every sink gets its own goroutine and timeout.
type DeadLetterFanout struct {
	log         *slog.Logger
	deadLetters <-chan event.Record
	sinks       []contract.DeadLetterSink
	sinkTimeout time.Duration
}

func NewDeadLetterFanout(log *slog.Logger, deadLetters <-chan event.Record, sinkTimeout time.Duration, sinks ...contract.DeadLetterSink) *DeadLetterFanout {
	return &DeadLetterFanout{log: log, deadLetters: deadLetters, sinks: sinks, sinkTimeout: sinkTimeout}
}

func (w *DeadLetterFanout) Run(ctx context.Context) error {
	for {
		select {
		case record, ok := <-w.deadLetters:
			if !ok {
				w.log.Debug("Dead letter channel closed")
				return nil
			}
			w.Fanout(ctx, record)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping dead letter fanout")
			return nil
		}
	}
}

// Fanout returns once every sink consumed the record or timed out.
func (w *DeadLetterFanout) Fanout(ctx context.Context, record event.Record) {
	var wg sync.WaitGroup
	for _, sink := range w.sinks {
		wg.Add(1)
		go func(s contract.DeadLetterSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := s.Consume(sinkCtx, record); err != nil {
				w.log.Error("Dead letter not archived", "event_id", record.ID, "sink", sinkName(s), "error", err)
			}
		}(sink)
	}
	wg.Wait()
}

func sinkName(sink contract.DeadLetterSink) string {
	if named, ok := sink.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}
