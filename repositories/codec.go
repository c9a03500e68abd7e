package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"

	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeRecord turns a record into a protobuf Struct. Payload data is opaque
// to the core, so it goes through JSON first: whatever the producer put in,
// the archive holds its JSON shape (numbers become float64).
func EncodeRecord(record event.Record) (*structpb.Struct, error) {
	payload, err := jsonShape(record.Payload.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload data of %s: %v", errors.ErrInvalidRecord, record.ID, err)
	}
	fields := map[string]any{
		"id":               record.ID,
		"name":             record.Name,
		"status":           string(record.Status),
		"retry_count":      record.RetryCount,
		"error":            record.Error,
		"timestamp":        formatTime(record.Timestamp),
		"next_retry_at":    formatTime(record.NextRetryAt),
		"completed_at":     formatTime(record.CompletedAt),
		"failed_at":        formatTime(record.FailedAt),
		"dead_lettered_at": formatTime(record.DeadLetteredAt),
		"room":             string(record.Payload.Room),
		"data":             payload,
	}
	if n := record.Payload.Notification; n != nil {
		body, err := jsonShape(n.Notification)
		if err != nil {
			return nil, fmt.Errorf("%w: notification of %s: %v", errors.ErrInvalidRecord, record.ID, err)
		}
		fields["notification"] = map[string]any{
			"channel":   n.Channel,
			"content":   n.Content,
			"recipient": n.Recipient,
			"body":      body,
		}
	}
	return structpb.NewStruct(fields)
}

func DecodeRecord(msg *structpb.Struct) (event.Record, error) {
	f := msg.GetFields()
	record := event.Record{
		ID:         f["id"].GetStringValue(),
		Name:       f["name"].GetStringValue(),
		Status:     event.Status(f["status"].GetStringValue()),
		RetryCount: int(f["retry_count"].GetNumberValue()),
		Error:      f["error"].GetStringValue(),
		Payload:    event.Payload{Room: domain.RoomID(f["room"].GetStringValue())},
	}
	times := []struct {
		field string
		into  *time.Time
	}{
		{"timestamp", &record.Timestamp},
		{"next_retry_at", &record.NextRetryAt},
		{"completed_at", &record.CompletedAt},
		{"failed_at", &record.FailedAt},
		{"dead_lettered_at", &record.DeadLetteredAt},
	}
	for _, t := range times {
		parsed, err := parseTime(f[t.field].GetStringValue())
		if err != nil {
			return event.Record{}, fmt.Errorf("%w: %s: %v", errors.ErrInvalidRecord, t.field, err)
		}
		*t.into = parsed
	}
	if data := f["data"].GetStructValue(); data != nil {
		record.Payload.Data = data.AsMap()
	}
	if n := f["notification"].GetStructValue(); n != nil {
		nf := n.GetFields()
		record.Payload.Notification = &event.Notification{
			Channel:      nf["channel"].GetStringValue(),
			Content:      nf["content"].GetStringValue(),
			Recipient:    nf["recipient"].GetStringValue(),
			Notification: nf["body"].AsInterface(),
		}
	}
	return record, nil
}

func jsonShape(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var shaped any
	err = json.Unmarshal(bytes, &shaped)
	return shaped, err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
