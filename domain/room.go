package domain

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// PermanentRoomType marks rooms that survive having no members.
const PermanentRoomType = "permanent"

// RoomID is the load-bearing "type:name" key. Callers broadcasting to a room
// rebuild it on their side, so the format must not change.
type RoomID string

func NewRoomID(roomType, name string) RoomID {
	return RoomID(roomType + ":" + name)
}

// Split returns the type and name parts of the id.
func (id RoomID) Split() (roomType, name string) {
	roomType, name, _ = strings.Cut(string(id), ":")
	return roomType, name
}

func (id RoomID) String() string { return string(id) }

type Set map[string]struct{}

type RoomSpec struct {
	Name        string `validate:"required"`
	Type        string `validate:"required,excludes=:"`
	Permissions *Permissions
}

type Room struct {
	ID          RoomID
	Type        string
	Name        string
	Permissions *Permissions
	CreatedBy   string
	CreatedAt   time.Time
	members     Set
}

func NewRoom(spec RoomSpec, createdBy string, at time.Time) *Room {
	return &Room{
		ID:          NewRoomID(spec.Type, spec.Name),
		Type:        spec.Type,
		Name:        spec.Name,
		Permissions: spec.Permissions,
		CreatedBy:   createdBy,
		CreatedAt:   at,
		members:     make(Set),
	}
}

func (r *Room) IsPermanent() bool { return r.Type == PermanentRoomType }

// AddMember reports whether the user was not already a member.
func (r *Room) AddMember(userID string) bool {
	if r.members == nil {
		r.members = make(Set)
	}
	if _, ok := r.members[userID]; ok {
		return false
	}
	r.members[userID] = struct{}{}
	return true
}

// RemoveMember reports whether the user was a member.
func (r *Room) RemoveMember(userID string) bool {
	if _, ok := r.members[userID]; !ok {
		return false
	}
	delete(r.members, userID)
	return true
}

func (r *Room) HasMember(userID string) bool {
	_, ok := r.members[userID]
	return ok
}

func (r *Room) MemberCount() int { return len(r.members) }

// Members returns the member ids sorted for stable output.
func (r *Room) Members() []string {
	return slices.Sorted(maps.Keys(r.members))
}

// Snapshot copies the room so it can leave the owner's lock.
// Permissions are shared: they are never mutated after creation.
func (r *Room) Snapshot() Room {
	snapshot := *r
	snapshot.members = maps.Clone(r.members)
	if snapshot.members == nil {
		snapshot.members = make(Set)
	}
	return snapshot
}
