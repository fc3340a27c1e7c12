package sync

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"loomtrack-backend/internal/conn"
	"loomtrack-backend/internal/model"
	"loomtrack-backend/internal/queue"
	"loomtrack-backend/internal/state"
)

// ErrUnknownRecord is returned by UpdateRecord for an id that does not
// exist in the working set.
var ErrUnknownRecord = errors.New("unknown record id")

// AlertSink receives every stored observation; the notification worker
// implements it to fire low-efficiency alerts.
type AlertSink interface {
	Observe(rec model.Record, settings model.Settings)
}

// Router is the mutation surface the UI talks to. Every mutation applies
// to local state immediately and always succeeds from the caller's
// perspective; remote propagation happens synchronously when connected or
// through the pending queue otherwise, and its failures surface only via
// the status indicator and pending count.
type Router struct {
	state  *state.Container
	queue  *queue.Queue
	engine *Engine
	alerts AlertSink // optional
}

// NewRouter wires the mutation router.
func NewRouter(st *state.Container, q *queue.Queue, e *Engine, alerts AlertSink) *Router {
	return &Router{state: st, queue: q, engine: e, alerts: alerts}
}

// Records returns the current working set.
func (r *Router) Records() []model.Record {
	return r.state.Records()
}

// Settings returns the settings singleton.
func (r *Router) Settings() model.Settings {
	return r.state.Settings()
}

// ConnectionStatus reports the connection manager's current state.
func (r *Router) ConnectionStatus() conn.State {
	return r.engine.mgr.State()
}

// PendingCount reports how many mutations await remote confirmation.
func (r *Router) PendingCount() int {
	return r.queue.Len()
}

// AddRecord assigns a fresh id, stores the record locally and queues an
// Add. Returns the stored record including its id.
func (r *Router) AddRecord(rec model.Record) model.Record {
	rec.ID = uuid.NewString()
	r.state.Put(rec)
	r.queue.Enqueue(model.PendingAdd, rec.ID, &rec)
	r.engine.Kick()
	r.observe(rec)
	return rec
}

// UpdateRecord replaces the record with the same id and queues an Update.
func (r *Router) UpdateRecord(rec model.Record) error {
	if _, ok := r.state.Record(rec.ID); !ok {
		return ErrUnknownRecord
	}
	r.state.Put(rec)
	r.queue.Enqueue(model.PendingUpdate, rec.ID, &rec)
	r.engine.Kick()
	r.observe(rec)
	return nil
}

// DeleteRecord removes the record and queues a Delete. Deleting an
// unknown id is a no-op.
func (r *Router) DeleteRecord(id string) {
	if _, ok := r.state.Record(id); !ok {
		return
	}
	r.state.Remove(id)
	r.queue.Enqueue(model.PendingDelete, id, nil)
	r.engine.Kick()
}

// UpdateSettings merges the patch into the singleton and persists it. When
// the remote identity changed the connection is rebuilt; otherwise the new
// settings are upserted directly if currently connected. Settings are
// never queued while offline.
func (r *Router) UpdateSettings(p model.SettingsPatch) model.Settings {
	old := r.state.Settings()
	merged := old.Apply(p)
	r.state.SetSettings(merged)

	if merged.RemoteEndpoint != old.RemoteEndpoint || merged.RemoteKey != old.RemoteKey {
		r.engine.Reconfigure()
	} else {
		go r.engine.PushSettings(context.Background())
	}
	return merged
}

// DeleteAllData clears local records, the pending queue and, only when
// connected, the remote record set. Destructive and best-effort.
func (r *Router) DeleteAllData(ctx context.Context) {
	r.queue.Clear()
	r.state.Reset()
	r.engine.WipeRemote(ctx)
}

func (r *Router) observe(rec model.Record) {
	if r.alerts != nil {
		r.alerts.Observe(rec, r.state.Settings())
	}
}
