package state

import (
	"sort"
	"sync"

	"loomtrack-backend/internal/cache"
	"loomtrack-backend/internal/model"
)

// Container holds the in-memory working set: all records plus the settings
// singleton. It is reconstructed from the local cache at process start and
// is the single source of truth afterwards; every mutation is immediately
// re-persisted so a crash or restart while offline loses nothing.
//
// There are no ambient singletons; the composition root creates one
// Container and hands it to the components that need it.
type Container struct {
	mu       sync.RWMutex
	records  map[string]model.Record
	settings model.Settings
	cache    *cache.Cache
}

// New builds a container from the cache. defaults supplies the settings
// used on first run, before any local or remote copy exists.
func New(c *cache.Cache, defaults model.Settings) *Container {
	ct := &Container{
		records: make(map[string]model.Record),
		cache:   c,
	}

	for _, r := range cache.Load(c, cache.KeyRecords, []model.Record(nil)) {
		ct.records[r.ID] = r
	}
	ct.settings = cache.Load(c, cache.KeySettings, defaults)
	return ct
}

// Records returns all records ordered by date, shift, then machine number.
func (ct *Container) Records() []model.Record {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	out := make([]model.Record, 0, len(ct.records))
	for _, r := range ct.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Shift != out[j].Shift {
			return out[i].Shift < out[j].Shift
		}
		return out[i].MachineNo < out[j].MachineNo
	})
	return out
}

// Record looks up one record by id.
func (ct *Container) Record(id string) (model.Record, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	r, ok := ct.records[id]
	return r, ok
}

// Put inserts or replaces a record and persists the collection.
func (ct *Container) Put(r model.Record) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.records[r.ID] = r
	ct.persistRecordsLocked()
}

// Remove deletes a record by id and persists the collection. Removing an
// absent id is a no-op.
func (ct *Container) Remove(id string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if _, ok := ct.records[id]; !ok {
		return
	}
	delete(ct.records, id)
	ct.persistRecordsLocked()
}

// ReplaceAll swaps the whole record set, used by the initial merge.
func (ct *Container) ReplaceAll(records []model.Record) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.records = make(map[string]model.Record, len(records))
	for _, r := range records {
		ct.records[r.ID] = r
	}
	ct.persistRecordsLocked()
}

// Settings returns the settings singleton.
func (ct *Container) Settings() model.Settings {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.settings
}

// SetSettings replaces the settings singleton and persists it.
func (ct *Container) SetSettings(s model.Settings) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.settings = s
	cache.Save(ct.cache, cache.KeySettings, s)
}

// Reset clears all records and restores default settings, keeping the
// remote endpoint and credential so the device can still reconnect. Used
// by the bulk-erase operation.
func (ct *Container) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.records = make(map[string]model.Record)
	defaults := model.DefaultSettings()
	defaults.RemoteEndpoint = ct.settings.RemoteEndpoint
	defaults.RemoteKey = ct.settings.RemoteKey
	ct.settings = defaults

	ct.persistRecordsLocked()
	cache.Save(ct.cache, cache.KeySettings, ct.settings)
}

func (ct *Container) persistRecordsLocked() {
	out := make([]model.Record, 0, len(ct.records))
	for _, r := range ct.records {
		out = append(out, r)
	}
	cache.Save(ct.cache, cache.KeyRecords, out)
}
