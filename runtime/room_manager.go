package runtime

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

var validate = validator.New()

// Ensure *RoomManager implements the contract.IRoomManager interface at compile time.
var _ contract.IRoomManager = (*RoomManager)(nil)

// RoomManager owns the multicast groups ("rooms") business services target,
// their access policy and who is currently in them.
//
// Membership is per user: joins and leaves come per connection, but a user
// with two connections is a single member.
type RoomManager struct {
	mu    sync.RWMutex
	log   *slog.Logger
	clock clockwork.Clock
	rooms map[domain.RoomID]*domain.Room
}

func NewRoomManager(log *slog.Logger, clock clockwork.Clock) *RoomManager {
	return &RoomManager{
		log:   log,
		clock: clock,
		rooms: make(map[domain.RoomID]*domain.Room),
	}
}

// CreateRoom registers the room "type:name". It never overwrites an existing room.
func (m *RoomManager) CreateRoom(creator domain.User, spec domain.RoomSpec) (domain.RoomID, error) {
	if err := validate.Struct(spec); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidRoomSpec, err)
	}
	room := domain.NewRoom(spec, creator.ID, m.clock.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; ok {
		return "", fmt.Errorf("%w: %s", errors.ErrRoomAlreadyExists, room.ID)
	}
	m.rooms[room.ID] = room
	m.log.Info(fmt.Sprintf("Room %s created", room.ID), "room_id", room.ID, "created_by", creator.ID)
	return room.ID, nil
}

// JoinRoom admits the connection's user into the room and tells the other
// members. The permission check may block on I/O and runs without the lock;
// if the room is replaced meanwhile, the new room is checked again.
func (m *RoomManager) JoinRoom(ctx context.Context, conn contract.Connection, roomID domain.RoomID) (domain.Room, error) {
	user := conn.User()
	for {
		m.mu.RLock()
		checked, ok := m.rooms[roomID]
		var room domain.Room
		if ok {
			room = checked.Snapshot()
		}
		m.mu.RUnlock()
		if !ok {
			return domain.Room{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
		}

		allowed, err := m.CheckRoomPermissions(ctx, user, room)
		if err != nil {
			return domain.Room{}, fmt.Errorf("permission check for room %s: %w", roomID, err)
		}
		if !allowed {
			m.log.Warn("Room access denied", "room_id", roomID, "user_id", user.ID, "role", user.Role)
			return domain.Room{}, fmt.Errorf("%w: user %s on room %s", errors.ErrPermissionDenied, user.ID, roomID)
		}

		m.mu.Lock()
		current, ok := m.rooms[roomID]
		if !ok {
			// Deleted while the permission check was running
			m.mu.Unlock()
			return domain.Room{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
		}
		if current != checked {
			m.mu.Unlock()
			m.log.Debug("Room replaced during permission check, checking again", "room_id", roomID, "user_id", user.ID)
			continue
		}
		if err = conn.Join(ctx, string(roomID)); err != nil {
			m.mu.Unlock()
			return domain.Room{}, fmt.Errorf("joining channel %s: %w", roomID, err)
		}
		current.AddMember(user.ID)
		room = current.Snapshot()
		m.mu.Unlock()

		m.notifyJoined(ctx, conn, room)
		return room, nil
	}
}

func (m *RoomManager) notifyJoined(ctx context.Context, conn contract.Connection, room domain.Room) {
	user, roomID := conn.User(), room.ID
	out := event.Outbound{
		Type: event.MemberJoinedType,
		Data: event.MemberJoined{RoomID: roomID, UserID: user.ID, Role: user.Role},
	}
	if err := conn.Broadcast(ctx, string(roomID), out); err != nil {
		m.log.Warn("Unable to notify room members", "room_id", roomID, "signal", out.Type, "error", err)
	}
	m.log.Debug(fmt.Sprintf("User %s joined room %s", user.ID, roomID), "members", room.MemberCount())
}

// LeaveRoom removes the connection's user from the room. A non permanent room
// left empty is deleted.
func (m *RoomManager) LeaveRoom(ctx context.Context, conn contract.Connection, roomID domain.RoomID) error {
	user := conn.User()

	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	if err := conn.Leave(ctx, string(roomID)); err != nil {
		m.log.Warn("Unable to leave channel", "room_id", roomID, "connection", conn.ID(), "error", err)
	}
	room.RemoveMember(user.ID)
	deleted := room.MemberCount() == 0 && !room.IsPermanent()
	if deleted {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()

	out := event.Outbound{
		Type: event.MemberLeftType,
		Data: event.MemberLeft{RoomID: roomID, UserID: user.ID},
	}
	if err := conn.Broadcast(ctx, string(roomID), out); err != nil {
		m.log.Warn("Unable to notify room members", "room_id", roomID, "signal", out.Type, "error", err)
	}
	if deleted {
		m.log.Info(fmt.Sprintf("Room %s deleted, no member left", roomID), "room_id", roomID)
	}
	return nil
}

// DeleteRoom destroys a room whatever its membership.
func (m *RoomManager) DeleteRoom(roomID domain.RoomID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	delete(m.rooms, roomID)
	m.log.Info(fmt.Sprintf("Room %s deleted", roomID), "room_id", roomID)
	return nil
}

// CheckRoomPermissions evaluates the room gates in order and stops at the first
// that refuses. Role and user lists are cheap pre-filters; the predicate runs
// last, so once they pass its answer is the answer.
func (m *RoomManager) CheckRoomPermissions(ctx context.Context, user domain.User, room domain.Room) (bool, error) {
	for _, rule := range room.Permissions.Rules() {
		allowed, err := rule.Allows(ctx, user)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, nil
		}
	}
	return true, nil
}

// GetUserAccessibleRooms scans every room. Meant for reconnect bootstrapping,
// not for per-message authorization.
func (m *RoomManager) GetUserAccessibleRooms(ctx context.Context, user domain.User) []domain.RoomID {
	return lo.FilterMap(m.Rooms(), func(room domain.Room, _ int) (domain.RoomID, bool) {
		allowed, err := m.CheckRoomPermissions(ctx, user, room)
		if err != nil {
			m.log.Warn("Permission check failed, room skipped", "room_id", room.ID, "user_id", user.ID, "error", err)
			return "", false
		}
		return room.ID, allowed
	})
}

func (m *RoomManager) GetRoom(roomID domain.RoomID) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return domain.Room{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	return room.Snapshot(), nil
}

func (m *RoomManager) GetRoomMembers(roomID domain.RoomID) ([]string, error) {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	return room.Members(), nil
}

// Rooms returns a snapshot of every active room ordered by id.
func (m *RoomManager) Rooms() []domain.Room {
	m.mu.RLock()
	rooms := lo.MapToSlice(m.rooms, func(_ domain.RoomID, room *domain.Room) domain.Room {
		return room.Snapshot()
	})
	m.mu.RUnlock()

	slices.SortFunc(rooms, func(a, b domain.Room) int { return cmp.Compare(a.ID, b.ID) })
	return rooms
}
