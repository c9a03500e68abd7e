package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type eventPruner interface {
	Prune(before time.Time) int
}

// EventJanitor periodically evicts settled event records older than the
// retention, so the status table does not grow without bound.
type EventJanitor struct {
	log       *slog.Logger
	clock     clockwork.Clock
	events    eventPruner
	interval  time.Duration
	retention time.Duration
}

func NewEventJanitor(log *slog.Logger, clock clockwork.Clock, events eventPruner, interval, retention time.Duration) *EventJanitor {
	return &EventJanitor{log: log, clock: clock, events: events, interval: interval, retention: retention}
}

func (w *EventJanitor) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			w.Sweep()
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event janitor")
			return nil
		}
	}
}

// Sweep prunes once and returns how many records went away.
func (w *EventJanitor) Sweep() int {
	pruned := w.events.Prune(w.clock.Now().Add(-w.retention))
	if pruned > 0 {
		w.log.Info(fmt.Sprintf("%d settled events pruned", pruned), "retention", w.retention)
	}
	return pruned
}
