package queue

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"loomtrack-backend/internal/model"
)

// FatalError wraps an apply error that must not be retried (the remote
// store rejected the payload). The offending operation is dropped from the
// queue and reported; everything else stays queued for the next drain.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal marks err as non-retryable for Drain.
func Fatal(err error) error { return &FatalError{Err: err} }

// ApplyFunc submits one operation to the remote store. A nil return
// confirms durability; a FatalError drops the operation; any other error
// leaves it queued.
type ApplyFunc func(op model.PendingOperation) error

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Skipped   bool // a drain was already in progress
	Applied   int
	Dropped   []model.PendingOperation // rejected by the remote, removed
	Retryable int                      // failed with a transport error, still queued
	Remaining int
}

// Queue is the ordered log of mutations not yet confirmed durable on the
// remote store. It holds at most one operation per record id and is
// re-persisted through the supplied hook on every change, so it survives a
// process restart while offline.
type Queue struct {
	mu       sync.Mutex
	ops      []model.PendingOperation
	nextSeq  int64
	draining bool
	persist  func(ops []model.PendingOperation)
}

// New creates an empty queue. persist is called with a snapshot of the
// queue after every change; pass the local-cache save there.
func New(persist func(ops []model.PendingOperation)) *Queue {
	if persist == nil {
		persist = func([]model.PendingOperation) {}
	}
	return &Queue{persist: persist}
}

// Restore seeds the queue from a previously persisted snapshot.
func (q *Queue) Restore(ops []model.PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append(q.ops[:0], ops...)
	for _, op := range q.ops {
		if op.Seq >= q.nextSeq {
			q.nextSeq = op.Seq + 1
		}
	}
}

// Enqueue records a mutation, de-duplicating by record id: a newer
// operation replaces an older queued one for the same id. The one special
// case is an Update arriving while an unconfirmed Add is queued: the
// remote store has never seen the id, so the two collapse into a single
// Add carrying the latest field values.
func (q *Queue) Enqueue(kind model.PendingKind, recordID string, rec *model.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	op := model.PendingOperation{
		Seq:      q.nextSeq,
		Kind:     kind,
		RecordID: recordID,
		Record:   rec,
	}
	q.nextSeq++

	for i := range q.ops {
		if q.ops[i].RecordID != recordID {
			continue
		}
		if q.ops[i].Kind == model.PendingAdd && kind == model.PendingUpdate {
			op.Kind = model.PendingAdd
		}
		// Replacing in place keeps the operation's original queue position.
		q.ops[i] = op
		q.persist(q.snapshotLocked())
		return
	}

	q.ops = append(q.ops, op)
	q.persist(q.snapshotLocked())
}

// Drain submits queued operations in FIFO order. Confirmed operations are
// removed one at a time, so a superseding Enqueue during the pass is never
// lost: removal matches on Seq, and a replaced entry no longer matches.
// Only one drain runs at a time; a concurrent call returns Skipped.
// Enqueue stays available throughout.
func (q *Queue) Drain(apply ApplyFunc) DrainResult {
	q.mu.Lock()
	if q.draining {
		res := DrainResult{Skipped: true, Remaining: len(q.ops)}
		q.mu.Unlock()
		return res
	}
	q.draining = true
	pass := q.snapshotLocked()
	q.mu.Unlock()

	var res DrainResult
	var fatal *FatalError
	for _, op := range pass {
		err := apply(op)
		switch {
		case err == nil:
			if q.remove(op.Seq) {
				res.Applied++
			}
		case errors.As(err, &fatal):
			log.Printf("queue: dropping %s for record %s, remote rejected it: %v", op.Kind, op.RecordID, fatal.Err)
			if q.remove(op.Seq) {
				res.Dropped = append(res.Dropped, op)
			}
		default:
			res.Retryable++
		}
	}

	q.mu.Lock()
	q.draining = false
	res.Remaining = len(q.ops)
	q.mu.Unlock()
	return res
}

// Has reports whether a pending operation exists for the record id. This
// is the suppression check: realtime events for such ids are stale echoes
// and must not overwrite local intent.
func (q *Queue) Has(recordID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.ops {
		if q.ops[i].RecordID == recordID {
			return true
		}
	}
	return false
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Snapshot returns a copy of the queue in FIFO order.
func (q *Queue) Snapshot() []model.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Clear empties the queue. Used by the bulk-erase operation.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = q.ops[:0]
	q.persist(q.snapshotLocked())
}

// remove deletes the operation with the given seq, if still present, and
// re-persists. Returns false when the entry was superseded mid-flight.
func (q *Queue) remove(seq int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.ops {
		if q.ops[i].Seq == seq {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			q.persist(q.snapshotLocked())
			return true
		}
	}
	return false
}

func (q *Queue) snapshotLocked() []model.PendingOperation {
	out := make([]model.PendingOperation, len(q.ops))
	copy(out, q.ops)
	return out
}
