package remote

import (
	"context"
	"errors"
	"fmt"

	"loomtrack-backend/internal/model"
)

// EventKind classifies a realtime change event.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is one remote mutation pushed over the realtime subscription. For
// inserts and updates Record is set; for deletes only RecordID is.
type Event struct {
	Kind     EventKind
	Record   *model.Record
	RecordID string
}

// Store is the remote system-of-record capability the sync engine consumes.
// Upserts and deletes are idempotent: re-applying an already-applied
// operation does not change remote state.
type Store interface {
	FetchSettings(ctx context.Context) (*model.Settings, error) // nil, nil when absent
	UpsertSettings(ctx context.Context, s model.Settings) error
	FetchAllRecords(ctx context.Context) ([]model.Record, error)
	UpsertRecord(ctx context.Context, r model.Record) error
	DeleteRecord(ctx context.Context, id string) error
	DeleteAllRecords(ctx context.Context) error

	// Subscribe opens the realtime stream. It returns only after the remote
	// store has acknowledged the subscription. onError fires once when the
	// stream dies for a reason other than the returned unsubscribe func.
	Subscribe(onEvent func(Event), onError func(error)) (unsubscribe func(), err error)
}

// Dialer produces a Store for the given endpoint and credential. The sync
// engine goes through a Dialer so tests can substitute an in-memory store.
type Dialer func(endpoint, credential string) Store

// RejectionError reports that the remote store rejected a payload
// (constraint violation, malformed data). Never retried: the offending
// operation is dropped and surfaced instead.
type RejectionError struct {
	Status int
	Body   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("remote rejected request (status %d): %s", e.Status, e.Body)
}

// IsRejection reports whether err is a non-retryable remote rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
