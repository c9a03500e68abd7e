package runtime

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"realtime-core/contract"
	"realtime-core/domain/event"
	"realtime-core/errors"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

// DeliveryFunc performs the topic specific part of a reliable delivery.
// Returning an error makes the whole delivery retry as a unit.
type DeliveryFunc func(ctx context.Context, record event.Record) error

type tracked struct {
	record event.Record
	origin contract.Connection
	timer  clockwork.Timer
}

// EventManager offers two delivery contracts.
//
// On/Emit is a synchronous, best-effort fan-out: every listener runs, in
// registration order, and no listener failure reaches the caller.
//
// HandleEvent is at-least-once delivery of a single action: failures are
// retried with exponential backoff and, once retries are exhausted, the event
// is failed, its origin is told, and the record goes to the dead-letter queue.
// The caller never sees those failures synchronously.
//
// All record mutations happen under mu, which is never held while user code
// (handlers, routes, transport, dispatcher) runs.
type EventManager struct {
	mu          sync.RWMutex
	log         *slog.Logger
	clock       clockwork.Clock
	policy      RetryPolicy
	events      map[string]*tracked
	listeners   map[string][]event.Handler
	routes      map[string]DeliveryFunc
	broadcaster contract.Broadcaster
	notifier    contract.NotificationDispatcher
	deadLetters chan<- event.Record
}

func NewEventManager(log *slog.Logger, clock clockwork.Clock, policy RetryPolicy) *EventManager {
	defaults := DefaultRetryPolicy()
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = defaults.BaseBackoff
	}
	if policy.MaxBackoff < policy.BaseBackoff {
		policy.MaxBackoff = policy.BaseBackoff
	}
	return &EventManager{
		log:       log,
		clock:     clock,
		policy:    policy,
		events:    make(map[string]*tracked),
		listeners: make(map[string][]event.Handler),
		routes:    make(map[string]DeliveryFunc),
	}
}

func (m *EventManager) SetNotificationService(dispatcher contract.NotificationDispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = dispatcher
}

func (m *EventManager) SetBroadcaster(broadcaster contract.Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcaster = broadcaster
}

// SetDeadLetterQueue hands failed records to ch without ever blocking on it.
func (m *EventManager) SetDeadLetterQueue(ch chan<- event.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = ch
}

// Route replaces the default room broadcast for events named name.
func (m *EventManager) Route(name string, fn DeliveryFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[name] = fn
}

// On registers handler for name. The same handler may be registered twice
// and then runs twice.
func (m *EventManager) On(name string, handler event.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[name] = append(m.listeners[name], handler)
}

// Emit runs every handler registered for name, in order, on the caller's goroutine.
func (m *EventManager) Emit(name string, data any) {
	m.mu.RLock()
	handlers := slices.Clone(m.listeners[name])
	m.mu.RUnlock()

	if len(handlers) == 0 {
		m.log.Warn(fmt.Sprintf("No listener registered for event %s", name), "event", name)
		return
	}
	for i, handler := range handlers {
		if err := invoke(handler, data); err != nil {
			m.log.Error("Event handler failed", "event", name, "handler", i, "data", data, "error", err)
		}
	}
}

func invoke(handler event.Handler, data any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrHandlerPanic, r)
		}
	}()
	return handler.Handle(data)
}

// HandleEvent starts reliable delivery of an event and returns its id,
// generated when id is empty. The first attempt runs before HandleEvent
// returns; retries run on timers and outlive ctx cancellation.
func (m *EventManager) HandleEvent(ctx context.Context, id, name string, payload event.Payload, origin contract.Connection) string {
	now := m.clock.Now()
	if id == "" {
		id = event.NewEventID(name, now)
	}

	m.mu.Lock()
	if existing, ok := m.events[id]; ok && !existing.record.Status.IsTerminal() {
		status := existing.record.Status
		m.mu.Unlock()
		m.log.Warn("Event already in flight, ignoring", "event_id", id, "event", name, "status", status)
		return id
	}
	t := &tracked{
		record: event.Record{
			ID:        id,
			Name:      name,
			Payload:   payload,
			Status:    event.StatusPending,
			Timestamp: now,
		},
		origin: origin,
	}
	m.events[id] = t
	m.mu.Unlock()

	m.attempt(context.WithoutCancel(ctx), t)
	return id
}

// attempt and everything it calls work on one lifecycle t. Once the id is
// resubmitted or pruned, t is no longer current and its continuations are dropped.
func (m *EventManager) attempt(ctx context.Context, t *tracked) {
	if err := m.processEvent(ctx, t); err != nil {
		m.handleEventError(ctx, t, err)
	}
}

// current reports whether t is still the lifecycle tracked for its id. Caller holds mu.
func (m *EventManager) current(t *tracked) bool {
	return m.events[t.record.ID] == t
}

func (m *EventManager) processEvent(ctx context.Context, t *tracked) error {
	record, ok := m.startProcessing(t)
	if !ok {
		m.log.Debug("Skipping attempt on settled event", "event_id", t.record.ID)
		return nil
	}
	if err := m.deliver(ctx, record); err != nil {
		return &errors.EventProcessingError{
			ID:      record.ID,
			Name:    record.Name,
			Payload: record.Payload,
			Err:     err,
		}
	}
	m.complete(t)
	return nil
}

func (m *EventManager) startProcessing(t *tracked) (event.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(t) || t.record.Status.IsTerminal() {
		return event.Record{}, false
	}
	t.record.Status = event.StatusProcessing
	t.timer = nil
	return t.record, true
}

func (m *EventManager) complete(t *tracked) {
	m.mu.Lock()
	// Cancelled or replaced while the delivery was in flight
	if !m.current(t) || t.record.Status != event.StatusProcessing {
		m.mu.Unlock()
		return
	}
	t.record.Status = event.StatusCompleted
	t.record.CompletedAt = m.clock.Now()
	t.record.NextRetryAt = time.Time{}
	record := t.record
	m.mu.Unlock()

	m.log.Info("Event processed",
		"event_id", record.ID,
		"event", record.Name,
		"retry_count", record.RetryCount,
		"elapsed", record.Elapsed(),
	)
}

func (m *EventManager) deliver(ctx context.Context, record event.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrHandlerPanic, r)
		}
	}()

	m.mu.RLock()
	route, routed := m.routes[record.Name]
	broadcaster, notifier := m.broadcaster, m.notifier
	m.mu.RUnlock()

	switch {
	case routed:
		if err := route(ctx, record); err != nil {
			return err
		}
	case record.Payload.Room != "":
		if broadcaster == nil {
			return errors.ErrNoBroadcaster
		}
		out := event.Outbound{Type: event.Type(record.Name), Data: record.Payload.Data}
		if err := broadcaster.BroadcastToRoom(ctx, record.Payload.Room, out); err != nil {
			return fmt.Errorf("broadcast to %s: %w", record.Payload.Room, err)
		}
	}

	if n := record.Payload.Notification; n != nil && notifier != nil {
		if err := notifier.SendThroughChannel(ctx, n.Channel, *n); err != nil {
			return fmt.Errorf("notification through %s: %w", n.Channel, err)
		}
	}
	return nil
}

// handleEventError schedules the next attempt, or gives up once the record
// has used all its retries.
func (m *EventManager) handleEventError(ctx context.Context, t *tracked, cause error) {
	m.mu.Lock()
	if !m.current(t) || t.record.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	if t.record.RetryCount >= m.policy.MaxRetries {
		m.mu.Unlock()
		m.handleFinalError(ctx, t, cause)
		return
	}
	id := t.record.ID

	backoff := m.policy.Delay(t.record.RetryCount)
	t.record.Status = event.StatusRetryPending
	t.record.RetryCount++
	t.record.NextRetryAt = m.clock.Now().Add(backoff)
	record := t.record
	t.timer = m.clock.AfterFunc(backoff, func() { m.attempt(ctx, t) })
	m.mu.Unlock()

	m.log.Warn("Event delivery failed, retry scheduled",
		"event_id", id,
		"event", record.Name,
		"retry_count", record.RetryCount,
		"backoff", backoff,
		"next_retry_at", record.NextRetryAt,
		"error", cause,
	)
}

// handleFinalError fails the event and reports whether it did; a record that
// already settled is left untouched.
func (m *EventManager) handleFinalError(ctx context.Context, t *tracked, cause error) bool {
	m.mu.Lock()
	if !m.current(t) || t.record.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.record.Status = event.StatusFailed
	t.record.FailedAt = m.clock.Now()
	t.record.NextRetryAt = time.Time{}
	t.record.Error = fmt.Errorf("%w: %w", errors.ErrEventDeliveryFailed, cause).Error()
	record, origin := t.record, t.origin
	m.mu.Unlock()

	m.log.Error("Event failed permanently",
		"event_id", record.ID,
		"event", record.Name,
		"retry_count", record.RetryCount,
		"elapsed", record.Elapsed(),
		"error", cause,
	)

	if origin != nil {
		out := event.Outbound{
			Type: event.EventFailedType,
			Data: event.EventFailed{
				EventID:    record.ID,
				Name:       record.Name,
				Error:      record.Error,
				RetryCount: record.RetryCount,
			},
		}
		if err := origin.Send(ctx, out); err != nil {
			m.log.Warn("Unable to notify origin of failed event", "event_id", record.ID, "connection", origin.ID(), "error", err)
		}
	}

	m.moveToDeadLetterQueue(t, record)
	return true
}

func (m *EventManager) moveToDeadLetterQueue(t *tracked, record event.Record) {
	archivedAt := m.clock.Now()
	id := record.ID

	m.mu.Lock()
	if m.current(t) {
		t.record.DeadLetteredAt = archivedAt
		record = t.record
	} else {
		record.DeadLetteredAt = archivedAt
	}
	deadLetters := m.deadLetters
	m.mu.Unlock()

	m.log.Error("Event moved to dead letter queue",
		"event_id", id,
		"event", record.Name,
		"retry_count", record.RetryCount,
		"failed_at", record.FailedAt,
		"archived_at", archivedAt,
		"error", record.Error,
	)

	if deadLetters == nil {
		return
	}
	select {
	case deadLetters <- record:
	default:
		m.log.Warn("Dead letter channel full, record only logged", "event_id", id)
	}
}

// Cancel stops the retries of a pending event and fails it with ErrEventCancelled.
func (m *EventManager) Cancel(ctx context.Context, id string) error {
	m.mu.RLock()
	t, ok := m.events[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrEventNotFound, id)
	}
	if !m.handleFinalError(context.WithoutCancel(ctx), t, errors.ErrEventCancelled) {
		return fmt.Errorf("%w: %s", errors.ErrEventNotPending, id)
	}
	return nil
}

func (m *EventManager) GetEventStatus(id string) (event.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.events[id]
	if !ok {
		return event.Record{}, false
	}
	return t.record, true
}

// GetPendingEvents returns events waiting for a first attempt or a retry.
func (m *EventManager) GetPendingEvents() []event.Record {
	return m.collect(func(r event.Record) bool { return r.Status.IsPending() })
}

func (m *EventManager) GetFailedEvents() []event.Record {
	return m.collect(func(r event.Record) bool { return r.Status == event.StatusFailed })
}

func (m *EventManager) collect(keep func(event.Record) bool) []event.Record {
	m.mu.RLock()
	records := lo.FilterMap(lo.Values(m.events), func(t *tracked, _ int) (event.Record, bool) {
		return t.record, keep(t.record)
	})
	m.mu.RUnlock()

	slices.SortFunc(records, func(a, b event.Record) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), strings.Compare(a.ID, b.ID))
	})
	return records
}

// Prune evicts settled records that reached their terminal state before the
// given time and returns how many were removed.
func (m *EventManager) Prune(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for id, t := range m.events {
		if !t.record.Status.IsTerminal() {
			continue
		}
		settledAt := lo.Ternary(t.record.Status == event.StatusCompleted, t.record.CompletedAt, t.record.FailedAt)
		if settledAt.Before(before) {
			delete(m.events, id)
			pruned++
		}
	}
	return pruned
}
