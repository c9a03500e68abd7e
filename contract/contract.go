//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"realtime-core/domain"
	"realtime-core/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives what the transport pushes to one connection.
type EventSink interface {
	Consume(ctx context.Context, out event.Outbound) error
}

// Connection is the transport's view of one connected client.
// Broadcast reaches every connection of the channel except this one.
type Connection interface {
	ID() string
	User() domain.User
	Join(ctx context.Context, channel string) error
	Leave(ctx context.Context, channel string) error
	Send(ctx context.Context, out event.Outbound) error
	Broadcast(ctx context.Context, channel string, out event.Outbound) error
}

// Broadcaster reaches every connection of a room, used by reliable delivery.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID domain.RoomID, out event.Outbound) error
}

type IHub interface {
	Broadcaster
	Connect(user domain.User, sink EventSink) Connection
	Disconnect(connectionID string)
}

// NotificationDispatcher forwards notifications to push/SMS/email adapters.
type NotificationDispatcher interface {
	SendThroughChannel(ctx context.Context, channelType string, notification event.Notification) error
}

// DeadLetterSink archives events that exhausted their retries.
type DeadLetterSink interface {
	Consume(ctx context.Context, record event.Record) error
}

type IRoomManager interface {
	CreateRoom(creator domain.User, spec domain.RoomSpec) (domain.RoomID, error)
	JoinRoom(ctx context.Context, conn Connection, roomID domain.RoomID) (domain.Room, error)
	LeaveRoom(ctx context.Context, conn Connection, roomID domain.RoomID) error
	GetRoom(roomID domain.RoomID) (domain.Room, error)
	GetRoomMembers(roomID domain.RoomID) ([]string, error)
	GetUserAccessibleRooms(ctx context.Context, user domain.User) []domain.RoomID
}
