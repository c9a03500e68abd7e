package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"

	"github.com/gin-gonic/gin"
)

// RoomCreatedEvent is emitted in process after a room is opened through the API.
const RoomCreatedEvent = "room.created"

const userKey = "user"

type CreateRoomRequest struct {
	Name  string   `json:"name" binding:"required"`
	Type  string   `json:"type" binding:"required"`
	Roles []string `json:"roles"`
	Users []string `json:"users"`
}

// Spec maps the request on a room policy. An absent list is no gate, an
// empty one admits nobody.
func (r CreateRoomRequest) Spec() domain.RoomSpec {
	spec := domain.RoomSpec{Name: r.Name, Type: r.Type}
	if r.Roles == nil && r.Users == nil {
		return spec
	}
	spec.Permissions = &domain.Permissions{}
	if r.Roles != nil {
		spec.Permissions.Roles = domain.NewRoleSet(r.Roles...)
	}
	if r.Users != nil {
		spec.Permissions.Users = domain.NewUserSet(r.Users...)
	}
	return spec
}

type PublishEventRequest struct {
	ID      string        `json:"id"`
	Name    string        `json:"name" binding:"required"`
	Payload event.Payload `json:"payload"`
}

type PublishEventResponse struct {
	ID     string       `json:"id"`
	Status event.Status `json:"status"`
}

// mountAPI registers the routes business services call to open rooms and
// publish reliable events. Every route needs a bearer token.
func mountAPI(router *gin.Engine, log *slog.Logger, deps Dependencies) {
	api := router.Group("/api", requireToken(deps.Tokens))

	api.POST("/rooms", func(c *gin.Context) {
		var req CreateRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		creator := c.MustGet(userKey).(domain.User)
		id, err := deps.Rooms.CreateRoom(creator, req.Spec())
		if err != nil {
			writeError(c, err)
			return
		}
		room, err := deps.Rooms.GetRoom(id)
		if err != nil {
			writeError(c, err)
			return
		}
		deps.Events.Emit(RoomCreatedEvent, event.RoomCreated{
			RoomID:    room.ID,
			Type:      room.Type,
			Name:      room.Name,
			CreatedBy: room.CreatedBy,
		})
		c.JSON(http.StatusCreated, toRoomView(room))
	})

	api.POST("/events", func(c *gin.Context) {
		var req PublishEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		publisher := c.MustGet(userKey).(domain.User)
		id := deps.Events.HandleEvent(c.Request.Context(), req.ID, req.Name, req.Payload, nil)
		record, _ := deps.Events.GetEventStatus(id)
		log.Debug("Event published over HTTP", "event_id", id, "event", req.Name, "publisher", publisher.ID, "status", record.Status)
		c.JSON(http.StatusAccepted, PublishEventResponse{ID: id, Status: record.Status})
	})
}

func requireToken(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		user, err := tokens.Validate(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// AnnounceRoomCreated pushes ROOM_CREATED to everyone in target.
func AnnounceRoomCreated(log *slog.Logger, broadcaster contract.Broadcaster, target domain.RoomID) event.Handler {
	return event.HandlerFunc(func(data any) error {
		created, ok := data.(event.RoomCreated)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", RoomCreatedEvent, data)
		}
		out := event.Outbound{Type: event.RoomCreatedType, Data: created}
		if err := broadcaster.BroadcastToRoom(context.Background(), target, out); err != nil {
			return fmt.Errorf("announcing %s in %s: %w", created.RoomID, target, err)
		}
		log.Debug("Room creation announced", "room_id", created.RoomID, "target", target)
		return nil
	})
}
