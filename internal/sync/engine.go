package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"loomtrack-backend/internal/conn"
	"loomtrack-backend/internal/model"
	"loomtrack-backend/internal/queue"
	"loomtrack-backend/internal/remote"
	"loomtrack-backend/internal/state"
)

const (
	defaultDrainInterval = 15 * time.Second
	defaultRemoteTimeout = 15 * time.Second
	defaultDrainAttempts = 3

	retryDelay    = 200 * time.Millisecond
	retryMaxDelay = 2 * time.Second
)

// Config holds the engine's timing knobs.
type Config struct {
	// DrainInterval is the periodic fallback: every interval the engine
	// retries a configured-but-down connection, and drains a non-empty
	// queue even when an apply failed silently without flipping the
	// connection state.
	DrainInterval time.Duration
	// RemoteTimeout bounds each remote call so a stalled fetch or apply
	// resolves instead of blocking future attempts.
	RemoteTimeout time.Duration
	// DrainAttempts is the bounded in-place retry per operation before it
	// is left queued for the next pass.
	DrainAttempts uint
}

func (c *Config) applyDefaults() {
	if c.DrainInterval <= 0 {
		c.DrainInterval = defaultDrainInterval
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = defaultRemoteTimeout
	}
	if c.DrainAttempts == 0 {
		c.DrainAttempts = defaultDrainAttempts
	}
}

// Engine reconciles local state with the remote store: the initial merge
// on (re)connection, the pending-queue drain, and realtime event
// application. It owns the connection manager and the retry timer; nothing
// presentation-side keeps the sync loop alive.
type Engine struct {
	state *state.Container
	queue *queue.Queue
	mgr   *conn.Manager
	dial  remote.Dialer
	cfg   Config
}

// NewEngine wires the engine. dial produces the remote store for whatever
// endpoint and credential the settings currently hold.
func NewEngine(st *state.Container, q *queue.Queue, mgr *conn.Manager, dial remote.Dialer, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{state: st, queue: q, mgr: mgr, dial: dial, cfg: cfg}
}

// Run drives the engine until ctx is cancelled: an immediate first tick,
// then the periodic fallback timer.
func (e *Engine) Run(ctx context.Context) {
	log.Println("Starting sync engine...")
	e.tick(ctx)

	timer := time.NewTimer(e.cfg.DrainInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync engine shutting down.")
			e.mgr.Teardown()
			return
		case <-timer.C:
			e.tick(ctx)
			timer.Reset(e.cfg.DrainInterval)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	switch e.mgr.State() {
	case conn.StateConnected:
		if e.queue.Len() > 0 {
			e.DrainQueue(ctx)
		}
	case conn.StateDisconnected:
		if s := e.state.Settings(); s.RemoteEndpoint != "" && s.RemoteKey != "" {
			if err := e.Connect(ctx); err != nil {
				log.Printf("sync: connection attempt failed: %v", err)
			}
		}
	}
}

// Kick nudges the engine outside its timer, right after a local mutation
// or a settings change: drain now when connected, otherwise start a
// connection attempt if one is configured.
func (e *Engine) Kick() {
	go func() {
		switch e.mgr.State() {
		case conn.StateConnected:
			e.DrainQueue(context.Background())
		case conn.StateDisconnected:
			if s := e.state.Settings(); s.RemoteEndpoint != "" && s.RemoteKey != "" {
				if err := e.Connect(context.Background()); err != nil {
					log.Printf("sync: connection attempt failed: %v", err)
				}
			}
		}
	}()
}

// Reconfigure tears down the current connection after the endpoint or
// credential changed, then tries to connect with the new identity. The old
// subscription is fully released first so no event is delivered twice.
func (e *Engine) Reconfigure() {
	e.mgr.Teardown()
	e.Kick()
}

// Connect performs one connection attempt: fetch the remote settings and
// full record set, merge, subscribe, then drain. Any failure is terminal
// for the attempt: the manager falls back to disconnected and the Run
// timer (or the next Kick) decides when to try again.
func (e *Engine) Connect(ctx context.Context) error {
	local := e.state.Settings()
	if local.RemoteEndpoint == "" || local.RemoteKey == "" {
		return errors.New("remote endpoint and credential are not configured")
	}
	if !e.mgr.BeginAttempt() {
		return nil
	}

	store := e.dial(local.RemoteEndpoint, local.RemoteKey)

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()

	remoteSettings, err := store.FetchSettings(fetchCtx)
	if err != nil {
		e.mgr.Fail()
		return fmt.Errorf("initial settings fetch failed: %w", err)
	}
	remoteRecords, err := store.FetchAllRecords(fetchCtx)
	if err != nil {
		e.mgr.Fail()
		return fmt.Errorf("initial record fetch failed: %w", err)
	}

	e.mergeSettings(fetchCtx, store, remoteSettings, local)
	e.mergeRecords(remoteRecords)

	unsubscribe, err := store.Subscribe(e.HandleEvent, e.onStreamError)
	if err != nil {
		e.mgr.Fail()
		return fmt.Errorf("realtime subscription failed: %w", err)
	}

	e.mgr.Established(store, unsubscribe)
	log.Printf("sync: connected to %s, %d records merged, %d operations pending",
		local.RemoteEndpoint, len(e.state.Records()), e.queue.Len())

	e.DrainQueue(ctx)
	return nil
}

// mergeSettings adopts the remote settings copy (remote-wins), keeping the
// endpoint and credential this connection was dialed with, since adopting a
// different identity mid-handshake would tear down the connection being
// established. A never-seeded remote is initialized from the local copy.
func (e *Engine) mergeSettings(ctx context.Context, store remote.Store, remoteSettings *model.Settings, local model.Settings) {
	if remoteSettings == nil {
		if err := store.UpsertSettings(ctx, local); err != nil {
			log.Printf("sync: could not seed remote settings: %v", err)
		}
		return
	}

	adopted := *remoteSettings
	adopted.RemoteEndpoint = local.RemoteEndpoint
	adopted.RemoteKey = local.RemoteKey
	e.state.SetSettings(adopted)
}

// mergeRecords builds the post-connection working set: every remote record
// (remote-wins for ids present on both sides) plus local-only records the
// remote has not seen yet; those are exactly the ones the pending queue
// already knows about. A record with a queued Delete is withheld from the
// merged view so the deletion is not resurrected by its own remote copy.
func (e *Engine) mergeRecords(remoteRecords []model.Record) {
	merged := make([]model.Record, 0, len(remoteRecords))
	seen := make(map[string]bool, len(remoteRecords))

	for _, r := range remoteRecords {
		if e.pendingDelete(r.ID) {
			continue
		}
		merged = append(merged, r)
		seen[r.ID] = true
	}
	for _, r := range e.state.Records() {
		if !seen[r.ID] && !e.pendingDelete(r.ID) {
			merged = append(merged, r)
		}
	}

	e.state.ReplaceAll(merged)
}

func (e *Engine) pendingDelete(id string) bool {
	for _, op := range e.queue.Snapshot() {
		if op.RecordID == id {
			return op.Kind == model.PendingDelete
		}
	}
	return false
}

// HandleEvent applies one realtime event to the working set, unless the
// record has a pending local operation, in which case the event is a stale
// echo of the pre-edit row and is ignored. The suppression ends when the
// pending operation is confirmed and removed from the queue.
func (e *Engine) HandleEvent(ev remote.Event) {
	if e.queue.Has(ev.RecordID) {
		log.Printf("sync: suppressing %s event for record %s, local mutation pending", ev.Kind, ev.RecordID)
		return
	}

	switch ev.Kind {
	case remote.EventInsert, remote.EventUpdate:
		e.state.Put(*ev.Record)
	case remote.EventDelete:
		e.state.Remove(ev.RecordID)
	}
}

func (e *Engine) onStreamError(err error) {
	log.Printf("sync: realtime stream dropped: %v", err)
	e.mgr.Drop()
}

// DrainQueue runs one drain pass against the connected store. Rejected
// operations are dropped and surfaced; transport failures leave their
// operations queued and drop the connection, which is what re-arms the
// retry timer.
func (e *Engine) DrainQueue(ctx context.Context) queue.DrainResult {
	store := e.mgr.Store()
	if store == nil {
		return queue.DrainResult{Remaining: e.queue.Len()}
	}

	res := e.queue.Drain(func(op model.PendingOperation) error {
		return e.applyRemote(ctx, store, op)
	})
	if res.Skipped {
		return res
	}

	for _, op := range res.Dropped {
		log.Printf("sync: %s for record %s was rejected by the remote store and will not be retried", op.Kind, op.RecordID)
	}
	if res.Retryable > 0 {
		log.Printf("sync: %d operations hit transport errors, dropping connection", res.Retryable)
		e.mgr.Drop()
	}
	return res
}

// applyRemote submits one pending operation with bounded retry. Rejections
// short-circuit the retry and come back as fatal so the queue drops them.
func (e *Engine) applyRemote(ctx context.Context, store remote.Store, op model.PendingOperation) error {
	err := retry.Do(func() error {
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
		defer cancel()

		var err error
		switch op.Kind {
		case model.PendingAdd, model.PendingUpdate:
			// The remote upsert treats an update for an unseen id as an
			// insert, so a collapsed Add/Update is safe either way.
			err = store.UpsertRecord(opCtx, *op.Record)
		case model.PendingDelete:
			err = store.DeleteRecord(opCtx, op.RecordID)
		default:
			err = queue.Fatal(fmt.Errorf("unknown pending kind %q", op.Kind))
		}
		if err != nil && remote.IsRejection(err) {
			return retry.Unrecoverable(err)
		}
		return err
	}, retry.Attempts(e.cfg.DrainAttempts), retry.Delay(retryDelay), retry.MaxDelay(retryMaxDelay), retry.LastErrorOnly(true))

	if err == nil {
		return nil
	}
	if remote.IsRejection(err) {
		return queue.Fatal(err)
	}
	return err
}

// PushSettings writes the settings singleton directly to the remote store.
// Settings changes are never queued: while offline the next connection's
// initial merge decides which side's copy is adopted.
func (e *Engine) PushSettings(ctx context.Context) {
	store := e.mgr.Store()
	if store == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()
	if err := store.UpsertSettings(opCtx, e.state.Settings()); err != nil {
		log.Printf("sync: settings upsert failed: %v", err)
	}
}

// WipeRemote issues the remote bulk delete. Destructive, best-effort, and
// never queued: there is no offline replay of a full wipe.
func (e *Engine) WipeRemote(ctx context.Context) {
	store := e.mgr.Store()
	if store == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()
	if err := store.DeleteAllRecords(opCtx); err != nil {
		log.Printf("sync: remote bulk delete failed: %v", err)
	}
}
