package errors

import (
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Room lifecycle
	ErrRoomAlreadyExists = fmt.Errorf("room already exists")
	ErrRoomNotFound      = fmt.Errorf("room not found")
	ErrPermissionDenied  = fmt.Errorf("permission denied")
	ErrInvalidRoomSpec   = fmt.Errorf("invalid room specification")

	// Reliable delivery
	ErrEventProcessing     = fmt.Errorf("event processing failed")
	ErrEventDeliveryFailed = fmt.Errorf("event delivery failed")
	ErrEventNotFound       = fmt.Errorf("event not found")
	ErrEventNotPending     = fmt.Errorf("event is not pending")
	ErrEventCancelled      = fmt.Errorf("event cancelled")
	ErrNoBroadcaster       = fmt.Errorf("no broadcaster configured")
	ErrHandlerPanic        = fmt.Errorf("handler panic")

	// Transport
	ErrInvalidToken      = fmt.Errorf("invalid or expired token")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrInvalidRecord     = fmt.Errorf("invalid dead letter record")
)

// EventProcessingError carries the event identity alongside the delivery failure
// so the retry path can log and archive it without looking the record up again.
type EventProcessingError struct {
	ID      string
	Name    string
	Payload any
	Err     error
}

func (e *EventProcessingError) Error() string {
	return fmt.Sprintf("%s: event %s (%s): %v", ErrEventProcessing, e.ID, e.Name, e.Err)
}

func (e *EventProcessingError) Unwrap() error {
	return e.Err
}

func (e *EventProcessingError) Is(target error) bool {
	return target == ErrEventProcessing
}
