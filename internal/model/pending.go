package model

// PendingKind tags a pending operation.
type PendingKind string

const (
	PendingAdd    PendingKind = "add"
	PendingUpdate PendingKind = "update"
	PendingDelete PendingKind = "delete"
)

// PendingOperation is a record mutation not yet confirmed durable on the
// remote store. At most one pending operation exists per record id; a
// newer mutation against the same id supersedes the queued one.
//
// Seq is assigned by the queue and strictly increases; it lets the queue
// tell a confirmed operation apart from one that was superseded while its
// apply call was in flight.
type PendingOperation struct {
	Seq      int64       `json:"seq"`
	Kind     PendingKind `json:"kind"`
	RecordID string      `json:"recordId"`
	Record   *Record     `json:"record,omitempty"` // nil for deletes
}
