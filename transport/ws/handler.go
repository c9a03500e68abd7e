// Package ws exposes the hub and the room manager over WebSocket.
package ws

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	JoinAction  = "join"
	LeaveAction = "leave"

	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInternal         = "INTERNAL"
)

// Frame is what a client sends.
type Frame struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type TokenValidator interface {
	Validate(token string) (domain.User, error)
}

type Handler struct {
	log            *slog.Logger
	hub            contract.IHub
	rooms          contract.IRoomManager
	tokens         TokenValidator
	writeTimeout   time.Duration
	originPatterns []string
}

func NewHandler(log *slog.Logger, hub contract.IHub, rooms contract.IRoomManager, tokens TokenValidator,
	writeTimeout time.Duration, originPatterns []string) *Handler {
	return &Handler{
		log:            log,
		hub:            hub,
		rooms:          rooms,
		tokens:         tokens,
		writeTimeout:   writeTimeout,
		originPatterns: originPatterns,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.tokens.Validate(bearerToken(r))
	if err != nil {
		h.log.Debug("Handshake refused", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}
	defer socket.CloseNow()

	session := &session{
		handler: h,
		socket:  socket,
		joined:  make(map[domain.RoomID]struct{}),
	}
	session.conn = h.hub.Connect(user, socketSink{socket: socket, timeout: h.writeTimeout})
	defer session.close()

	h.log.Info(fmt.Sprintf("User %s connected", user.ID), "connection", session.conn.ID(), "role", user.Role)
	session.serve(r.Context())
}

func bearerToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// socketSink writes outbound events to one socket.
type socketSink struct {
	socket  *websocket.Conn
	timeout time.Duration
}

func (s socketSink) Consume(ctx context.Context, out event.Outbound) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return wsjson.Write(ctx, s.socket, out)
}

// session is one connected socket and the rooms it is in.
type session struct {
	handler *Handler
	socket  *websocket.Conn
	conn    contract.Connection
	joined  map[domain.RoomID]struct{}
}

func (s *session) serve(ctx context.Context) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, s.socket, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.handler.log.Debug("Socket read ended", "connection", s.conn.ID(), "error", err)
			}
			return
		}
		reply := s.handle(ctx, frame)
		if err := s.conn.Send(ctx, reply); err != nil {
			s.handler.log.Warn("Unable to reply", "connection", s.conn.ID(), "error", err)
			return
		}
	}
}

func (s *session) handle(ctx context.Context, frame Frame) event.Outbound {
	roomID := domain.RoomID(frame.Room)
	if roomType, name := roomID.Split(); roomType == "" || name == "" {
		return failure(CodeBadRequest, fmt.Sprintf("room must be type:name, got %q", frame.Room))
	}

	switch frame.Action {
	case JoinAction:
		room, err := s.handler.rooms.JoinRoom(ctx, s.conn, roomID)
		if err != nil {
			return s.failure(roomID, err)
		}
		s.joined[roomID] = struct{}{}
		return event.Outbound{
			Type: event.RoomJoinedType,
			Data: event.RoomJoined{RoomID: roomID, Members: room.Members()},
		}
	case LeaveAction:
		if err := s.handler.rooms.LeaveRoom(ctx, s.conn, roomID); err != nil {
			return s.failure(roomID, err)
		}
		delete(s.joined, roomID)
		return event.Outbound{Type: event.RoomLeftType, Data: event.RoomLeft{RoomID: roomID}}
	default:
		return failure(CodeBadRequest, fmt.Sprintf("unknown action %q", frame.Action))
	}
}

func (s *session) failure(roomID domain.RoomID, err error) event.Outbound {
	switch {
	case stderrors.Is(err, errors.ErrRoomNotFound):
		return failure(CodeRoomNotFound, err.Error())
	case stderrors.Is(err, errors.ErrPermissionDenied):
		return failure(CodePermissionDenied, err.Error())
	default:
		s.handler.log.Error("Room operation failed", "room_id", roomID, "connection", s.conn.ID(), "error", err)
		return failure(CodeInternal, "internal error")
	}
}

func failure(code, message string) event.Outbound {
	return event.Outbound{Type: event.ErrorType, Data: event.Error{Code: code, Message: message}}
}

// close leaves every joined room, then forgets the connection.
func (s *session) close() {
	ctx := context.Background()
	for roomID := range s.joined {
		if err := s.handler.rooms.LeaveRoom(ctx, s.conn, roomID); err != nil {
			s.handler.log.Debug("Leave on disconnect failed", "room_id", roomID, "error", err)
		}
	}
	s.handler.hub.Disconnect(s.conn.ID())
	s.handler.log.Info(fmt.Sprintf("User %s disconnected", s.conn.User().ID), "connection", s.conn.ID())
}
