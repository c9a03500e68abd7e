package sink

import (
	"context"
	"fmt"
	"log/slog"

	"realtime-core/contract"
	"realtime-core/domain/event"
	"realtime-core/repositories"
)

var _ contract.DeadLetterSink = DiskSink{}

// DiskSink archives dead letters into the local badger store.
type DiskSink struct {
	repository repositories.IDeadLetterRepository
	log        *slog.Logger
}

func NewDiskSink(repository repositories.IDeadLetterRepository, log *slog.Logger) DiskSink {
	return DiskSink{repository: repository, log: log}
}

func (d DiskSink) Name() string { return "disk" }

func (d DiskSink) Consume(ctx context.Context, record event.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.repository.Store(record); err != nil {
		return fmt.Errorf("archiving %s: %w", record.ID, err)
	}
	d.log.Debug(fmt.Sprintf("Dead letter %s archived on disk", record.ID), "name", record.Name)
	return nil
}
