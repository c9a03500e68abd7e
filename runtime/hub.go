package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"

	"github.com/google/uuid"
)

var _ contract.IHub = (*Hub)(nil)

// Hub is the in-process multicast transport: connections, the channels they
// joined, and delivery to their sinks.
type Hub struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[string]*hubConnection // map connection -> session
	channels map[string]domain.Set     // map channel to connections
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: make(map[string]*hubConnection),
		channels: make(map[string]domain.Set),
	}
}

// Connect registers a connection for user whose outbound traffic goes to sink.
func (h *Hub) Connect(user domain.User, sink contract.EventSink) contract.Connection {
	conn := &hubConnection{id: uuid.NewString(), user: user, hub: h, sink: sink}
	h.mu.Lock()
	h.sessions[conn.id] = conn
	h.mu.Unlock()
	h.log.Debug("Connection registered", "connection", conn.id, "user_id", user.ID)
	return conn
}

// Disconnect forgets the connection and removes it from every channel,
// leaving no empty channel behind.
func (h *Hub) Disconnect(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, connectionID)
	for channel, members := range h.channels {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) BroadcastToRoom(ctx context.Context, roomID domain.RoomID, out event.Outbound) error {
	return h.deliver(ctx, string(roomID), "", out)
}

// GetSinksForChannel resolves the channel members into their sinks.
// Returns nil if the channel doesn't exist.
func (h *Hub) GetSinksForChannel(channel string) []contract.EventSink {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.channels[channel]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for _, id := range slices.Sorted(maps.Keys(members)) {
		if conn, exists := h.sessions[id]; exists {
			sinks = append(sinks, conn.sink)
		}
	}
	return sinks
}

func (h *Hub) join(connectionID, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[connectionID]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownConnection, connectionID)
	}
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(domain.Set)
	}
	h.channels[channel][connectionID] = struct{}{}
	return nil
}

func (h *Hub) leave(connectionID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.channels[channel]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

// deliver pushes out to every connection of channel except one. Every sink is
// tried; their failures are joined.
func (h *Hub) deliver(ctx context.Context, channel, except string, out event.Outbound) error {
	h.mu.RLock()
	var targets []*hubConnection
	for id := range h.channels[channel] {
		if conn, ok := h.sessions[id]; ok && id != except {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	var errs []error
	for _, conn := range targets {
		if err := conn.sink.Consume(ctx, out); err != nil {
			h.log.Warn("Sink rejected outbound event", "connection", conn.id, "channel", channel, "type", out.Type, "error", err)
			errs = append(errs, fmt.Errorf("connection %s: %w", conn.id, err))
		}
	}
	return stderrors.Join(errs...)
}

type hubConnection struct {
	id   string
	user domain.User
	hub  *Hub
	sink contract.EventSink
}

func (c *hubConnection) ID() string        { return c.id }
func (c *hubConnection) User() domain.User { return c.user }

func (c *hubConnection) Join(_ context.Context, channel string) error {
	return c.hub.join(c.id, channel)
}

func (c *hubConnection) Leave(_ context.Context, channel string) error {
	c.hub.leave(c.id, channel)
	return nil
}

func (c *hubConnection) Send(ctx context.Context, out event.Outbound) error {
	return c.sink.Consume(ctx, out)
}

func (c *hubConnection) Broadcast(ctx context.Context, channel string, out event.Outbound) error {
	return c.hub.deliver(ctx, channel, c.id, out)
}
