package runtime

import (
	"context"
	"sync"

	"realtime-core/contract"
	"realtime-core/domain/event"

	"github.com/samber/lo"
)

var _ contract.EventSink = (*timeline)(nil)

// timeline records what one connection received, in arrival order
type timeline struct {
	owner  string
	mu     sync.Mutex
	events []event.Outbound
}

func newTimeline(owner string) *timeline {
	return &timeline{owner: owner}
}

func (t *timeline) Consume(_ context.Context, out event.Outbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, out)
	return nil
}

func (t *timeline) Events() []event.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]event.Outbound(nil), t.events...)
}

func (t *timeline) OfType(eventType event.Type) []event.Outbound {
	return lo.Filter(t.Events(), func(out event.Outbound, _ int) bool {
		return out.Type == eventType
	})
}
