package sync

import (
	"context"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"loomtrack-backend/internal/cache"
	"loomtrack-backend/internal/conn"
	"loomtrack-backend/internal/model"
	"loomtrack-backend/internal/queue"
	"loomtrack-backend/internal/remote"
	"loomtrack-backend/internal/state"
)

// fakeStore is an in-memory remote.Store with failure injection. It stands
// in for the system of record in engine tests.
type fakeStore struct {
	mu           stdsync.Mutex
	settings     *model.Settings
	records      map[string]model.Record
	subscriber   func(remote.Event)
	onError      func(error)
	unsubscribed bool

	fetchErr     error // injected into both initial fetches
	subscribeErr error
	upsertErr    map[string]error // per record id
	upsertCalls  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:     make(map[string]model.Record),
		upsertErr:   make(map[string]error),
		upsertCalls: make(map[string]int),
	}
}

func (f *fakeStore) FetchSettings(context.Context) (*model.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.settings == nil {
		return nil, nil
	}
	s := *f.settings
	return &s, nil
}

func (f *fakeStore) UpsertSettings(_ context.Context, s model.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = &s
	return nil
}

func (f *fakeStore) FetchAllRecords(context.Context) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]model.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) UpsertRecord(_ context.Context, r model.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls[r.ID]++
	if err := f.upsertErr[r.ID]; err != nil {
		return err
	}
	f.records[r.ID] = r
	return nil
}

func (f *fakeStore) DeleteRecord(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeStore) DeleteAllRecords(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = make(map[string]model.Record)
	return nil
}

func (f *fakeStore) Subscribe(onEvent func(remote.Event), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.subscriber = onEvent
	f.onError = onError
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed = true
		f.subscriber = nil
	}, nil
}

// push delivers a realtime event to the current subscriber, mimicking the
// remote store echoing a mutation.
func (f *fakeStore) push(ev remote.Event) {
	f.mu.Lock()
	sub := f.subscriber
	f.mu.Unlock()
	if sub != nil {
		sub(ev)
	}
}

func (f *fakeStore) record(id string) (model.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

func (f *fakeStore) seed(records ...model.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.records[r.ID] = r
	}
}

// harness bundles a fully wired engine over a fake remote for tests.
type harness struct {
	store  *fakeStore
	cache  *cache.Cache
	state  *state.Container
	queue  *queue.Queue
	mgr    *conn.Manager
	engine *Engine
	router *Router

	dialMu stdsync.Mutex
	dialed []string
}

func (h *harness) dialedEndpoints() []string {
	h.dialMu.Lock()
	defer h.dialMu.Unlock()
	return append([]string(nil), h.dialed...)
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.CacheEntry{}))
	c := cache.New(db)

	h := &harness{store: newFakeStore(), cache: c}

	defaults := model.DefaultSettings()
	defaults.RemoteEndpoint = "https://records.example.com"
	defaults.RemoteKey = "secret"

	h.state = state.New(c, defaults)
	h.queue = queue.New(func(ops []model.PendingOperation) {
		cache.Save(c, cache.KeyPending, ops)
	})
	h.mgr = conn.NewManager(nil)
	h.engine = NewEngine(h.state, h.queue, h.mgr, func(endpoint, credential string) remote.Store {
		h.dialMu.Lock()
		h.dialed = append(h.dialed, endpoint)
		h.dialMu.Unlock()
		return h.store
	}, Config{DrainAttempts: 1})
	h.router = NewRouter(h.state, h.queue, h.engine, nil)
	return h
}

// newQueueFromCache rebuilds a pending queue from the harness cache the way
// the composition root does at process start.
func newQueueFromCache(t *testing.T, h *harness) *queue.Queue {
	t.Helper()
	q := queue.New(func(ops []model.PendingOperation) {
		cache.Save(h.cache, cache.KeyPending, ops)
	})
	q.Restore(cache.Load(h.cache, cache.KeyPending, []model.PendingOperation(nil)))
	return q
}

func dayRecord(id, machineNo string, stops int) model.Record {
	return model.Record{
		ID: id, Date: "2024-01-01", Shift: model.ShiftDay, MachineNo: machineNo,
		Stops: stops, WeftMeter: 120.5, Total: "08:00:00", Run: "07:30:00",
	}
}
