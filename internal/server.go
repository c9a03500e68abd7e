package internal

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os"
	goruntime "runtime"
	"strconv"
	"time"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"
	"realtime-core/repositories"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"
)

const defaultPageSize = 50

type EventInspector interface {
	GetEventStatus(id string) (event.Record, bool)
	GetPendingEvents() []event.Record
	GetFailedEvents() []event.Record
}

type RoomInspector interface {
	Rooms() []domain.Room
	GetRoom(roomID domain.RoomID) (domain.Room, error)
}

type EventService interface {
	EventInspector
	HandleEvent(ctx context.Context, id, name string, payload event.Payload, origin contract.Connection) string
	Emit(name string, data any)
}

type RoomService interface {
	RoomInspector
	CreateRoom(creator domain.User, spec domain.RoomSpec) (domain.RoomID, error)
}

type TokenVerifier interface {
	Validate(token string) (domain.User, error)
}

// Dependencies are the components the HTTP surface exposes. Socket is
// mounted on /ws and the /api routes need Tokens, each when set.
type Dependencies struct {
	Events      EventService
	Rooms       RoomService
	DeadLetters repositories.IDeadLetterRepository
	Tokens      TokenVerifier
	Socket      http.Handler
}

type RoomView struct {
	ID        domain.RoomID `json:"id"`
	Type      string        `json:"type"`
	Name      string        `json:"name"`
	Permanent bool          `json:"permanent"`
	CreatedBy string        `json:"createdBy"`
	CreatedAt time.Time     `json:"createdAt"`
	Members   []string      `json:"members"`
}

type DeadLetterPage struct {
	Items  []event.Record `json:"items"`
	Cursor *string        `json:"cursor,omitempty"`
}

func NewRouter(log *slog.Logger, deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Socket != nil {
		router.GET("/ws", gin.WrapH(deps.Socket))
	}
	if deps.Tokens != nil {
		mountAPI(router, log, deps)
	}

	debug := router.Group("/debug")
	debug.GET("/events/pending", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Events.GetPendingEvents())
	})
	debug.GET("/events/failed", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Events.GetFailedEvents())
	})
	debug.GET("/events/:id", func(c *gin.Context) {
		record, ok := deps.Events.GetEventStatus(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusOK, record)
	})

	debug.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, lo.Map(deps.Rooms.Rooms(), func(room domain.Room, _ int) RoomView {
			return toRoomView(room)
		}))
	})
	debug.GET("/rooms/:id", func(c *gin.Context) {
		room, err := deps.Rooms.GetRoom(domain.RoomID(c.Param("id")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toRoomView(room))
	})

	debug.GET("/dead-letters", func(c *gin.Context) {
		limit := defaultPageSize
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		var cursor *string
		if raw, ok := c.GetQuery("cursor"); ok && raw != "" {
			cursor = &raw
		}
		records, next, err := deps.DeadLetters.List(cursor, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, DeadLetterPage{Items: lo.Ternary(records == nil, []event.Record{}, records), Cursor: next})
	})
	debug.GET("/dead-letters/:id", func(c *gin.Context) {
		record, err := deps.DeadLetters.Get(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	})
	debug.DELETE("/dead-letters/:id", func(c *gin.Context) {
		if err := deps.DeadLetters.Delete(c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	debug.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats(log, deps))
	})
	return router
}

func toRoomView(room domain.Room) RoomView {
	return RoomView{
		ID:        room.ID,
		Type:      room.Type,
		Name:      room.Name,
		Permanent: room.IsPermanent(),
		CreatedBy: room.CreatedBy,
		CreatedAt: room.CreatedAt,
		Members:   room.Members(),
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, errors.ErrRoomNotFound), stderrors.Is(err, errors.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrRoomAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrInvalidRoomSpec):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// stats mixes the coordination counters with the process footprint.
func stats(log *slog.Logger, deps Dependencies) map[string]any {
	out := map[string]any{
		"rooms":          len(deps.Rooms.Rooms()),
		"pending_events": len(deps.Events.GetPendingEvents()),
		"failed_events":  len(deps.Events.GetFailedEvents()),
		"goroutines":     goruntime.NumGoroutine(),
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
		return out
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		out["ram_bytes"] = memInfo.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		out["cpu_percent"] = cpu
	}
	return out
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		begin := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(begin))
	}
}
