package event

import "realtime-core/domain"

// Signals pushed to connections.
const (
	MemberJoinedType Type = "MEMBER_JOINED"
	MemberLeftType   Type = "MEMBER_LEFT"
	EventFailedType  Type = "EVENT_FAILED"
	RoomJoinedType   Type = "ROOM_JOINED"
	RoomLeftType     Type = "ROOM_LEFT"
	RoomCreatedType  Type = "ROOM_CREATED"
	ErrorType        Type = "ERROR"
)

type Type string

// Outbound is the envelope a connection sink receives.
type Outbound struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

type MemberJoined struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID string        `json:"userId"`
	Role   string        `json:"role"`
}

type MemberLeft struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID string        `json:"userId"`
}

// EventFailed tells the originating connection that its event was given up on.
// It is terminal, clients must not resend on it.
type EventFailed struct {
	EventID    string `json:"eventId"`
	Name       string `json:"name"`
	Error      string `json:"error"`
	RetryCount int    `json:"retryCount"`
}

type RoomJoined struct {
	RoomID  domain.RoomID `json:"roomId"`
	Members []string      `json:"members"`
}

type RoomLeft struct {
	RoomID domain.RoomID `json:"roomId"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomCreated announces a room opened through the API.
type RoomCreated struct {
	RoomID    domain.RoomID `json:"roomId"`
	Type      string        `json:"type"`
	Name      string        `json:"name"`
	CreatedBy string        `json:"createdBy"`
}
