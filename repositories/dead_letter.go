//go:generate go run go.uber.org/mock/mockgen -source=dead_letter.go -destination=../mocks/mock_dead_letter_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"

	"realtime-core/domain/event"
	"realtime-core/errors"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	deadLetterPrefix = "dlq:"
	deadLetterIndex  = "dlq-id:"
	// Seek key past every 19 digit timestamp
	newestCursor = "9999999999999999999"
)

type IDeadLetterRepository interface {
	Store(record event.Record) error
	Get(id string) (event.Record, error)
	List(cursor *string, limit int) ([]event.Record, *string, error)
	Delete(id string) error
}

type DeadLetterRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewDeadLetterRepository(db *badger.DB, log *slog.Logger) DeadLetterRepository {
	return DeadLetterRepository{db: db, log: log}
}

// Store archives a failed record under "dlq:{failed_at_padded}:{id}".
// The 19 digit padding keeps keys in chronological order and the id keeps two
// failures of the same nanosecond apart. A secondary "dlq-id:{id}" key points
// back at the primary one for Get and Delete.
func (r DeadLetterRepository) Store(record event.Record) error {
	if record.ID == "" || record.FailedAt.IsZero() {
		return fmt.Errorf("%w: id and failure time are required", errors.ErrInvalidRecord)
	}
	msg, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	key := deadLetterKey(record)
	return r.db.Update(func(txn *badger.Txn) error {
		if previous, err := r.primaryKey(txn, record.ID); err == nil && previous != key {
			if err = txn.Delete([]byte(previous)); err != nil {
				return err
			}
		}
		if err := txn.Set([]byte(key), bytes); err != nil {
			return err
		}
		return txn.Set([]byte(deadLetterIndex+record.ID), []byte(key))
	})
}

func (r DeadLetterRepository) Get(id string) (event.Record, error) {
	var record event.Record
	err := r.db.View(func(txn *badger.Txn) error {
		key, err := r.primaryKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			record, err = unmarshalRecord(value)
			return err
		})
	})
	return record, err
}

// List walks the archive newest first. The returned cursor is the position of
// the last record read; pass it back to continue. It is nil once the archive
// is exhausted. A limit <= 0 means no limit.
func (r DeadLetterRepository) List(cursor *string, limit int) ([]event.Record, *string, error) {
	var values [][]byte
	var lastKey string
	exhausted := true
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(deadLetterPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(prefix, []byte(newestCursor)...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(values) == limit {
				exhausted = false
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			if err := item.Value(func(value []byte) error {
				values = append(values, value)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	records := make([]event.Record, 0, len(values))
	for _, value := range values {
		record, err := unmarshalRecord(value)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, record)
	}
	if exhausted {
		return records, nil, nil
	}
	return records, &lastKey, nil
}

func (r DeadLetterRepository) Delete(id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key, err := r.primaryKey(txn, id)
		if err != nil {
			return err
		}
		if err = txn.Delete([]byte(key)); err != nil {
			return err
		}
		r.log.Debug(fmt.Sprintf("Dead letter %s deleted", id))
		return txn.Delete([]byte(deadLetterIndex + id))
	})
}

func (r DeadLetterRepository) primaryKey(txn *badger.Txn, id string) (string, error) {
	item, err := txn.Get([]byte(deadLetterIndex + id))
	if err == badger.ErrKeyNotFound {
		return "", fmt.Errorf("%w: %s", errors.ErrEventNotFound, id)
	}
	if err != nil {
		return "", err
	}
	value, err := item.ValueCopy(nil)
	return string(value), err
}

func deadLetterKey(record event.Record) string {
	return fmt.Sprintf("%s%019d:%s", deadLetterPrefix, record.FailedAt.UnixNano(), record.ID)
}

func unmarshalRecord(value []byte) (event.Record, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(value, &msg); err != nil {
		return event.Record{}, err
	}
	return DecodeRecord(&msg)
}
