package event

import (
	"fmt"
	"strings"
	"time"

	"realtime-core/domain"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusRetryPending Status = "retry-pending"
	StatusFailed       Status = "failed"
)

// IsTerminal reports whether the record can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsPending reports whether a delivery attempt is still expected.
func (s Status) IsPending() bool {
	return s == StatusPending || s == StatusRetryPending
}

// Notification is forwarded to the notification dispatcher when present on a payload.
type Notification struct {
	Channel      string `json:"channel"`
	Notification any    `json:"notification,omitempty"`
	Content      string `json:"content,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
}

// Payload is what a reliable event carries. Room targets a transport broadcast,
// Data is opaque to the core.
type Payload struct {
	Room         domain.RoomID  `json:"room,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

// Record tracks one reliable event through its lifecycle.
type Record struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Payload        Payload   `json:"payload"`
	Status         Status    `json:"status"`
	RetryCount     int       `json:"retryCount"`
	Timestamp      time.Time `json:"timestamp"`
	NextRetryAt    time.Time `json:"nextRetryAt,omitzero"`
	CompletedAt    time.Time `json:"completedAt,omitzero"`
	FailedAt       time.Time `json:"failedAt,omitzero"`
	DeadLetteredAt time.Time `json:"deadLetteredAt,omitzero"`
	Error          string    `json:"error,omitempty"`
}

// Elapsed is the time between creation and the terminal transition,
// or zero while the record is still moving.
func (r Record) Elapsed() time.Duration {
	switch r.Status {
	case StatusCompleted:
		return r.CompletedAt.Sub(r.Timestamp)
	case StatusFailed:
		return r.FailedAt.Sub(r.Timestamp)
	default:
		return 0
	}
}

// NewEventID builds the "name-timestamp-random" identifier used when the
// caller does not supply one.
func NewEventID(name string, at time.Time) string {
	random, _, _ := strings.Cut(uuid.NewString(), "-")
	return fmt.Sprintf("%s-%d-%s", name, at.UnixMilli(), random)
}
