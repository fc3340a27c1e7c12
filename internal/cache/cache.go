package cache

import (
	"encoding/json"
	"errors"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loomtrack-backend/internal/model"
)

// Versioned keys, one per entity collection. Bump a key's suffix when its
// serialized shape changes; stale rows under the old key are then simply
// ignored by Load.
const (
	KeyRecords  = "records.v1"
	KeySettings = "settings.v1"
	KeyPending  = "pending_ops.v1"
)

// Cache is the durable local key/value surface. Load never fails from the
// caller's perspective and Save is best-effort: the in-memory state is the
// source of truth for the session, the cache only has to be right the next
// time the process starts.
type Cache struct {
	db *gorm.DB
}

// New creates a cache over the given database handle.
func New(db *gorm.DB) *Cache {
	return &Cache{db: db}
}

// Load reads the entry under key and unmarshals it into T. An absent row,
// a read error, or corrupt data all yield the supplied default.
func Load[T any](c *Cache, key string, def T) T {
	var entry model.CacheEntry
	if err := c.db.First(&entry, "key = ?", key).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("cache: read of %q failed, using default: %v", key, err)
		}
		return def
	}

	var v T
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		log.Printf("cache: corrupt data under %q, using default: %v", key, err)
		return def
	}
	return v
}

// Save marshals v and upserts it under key. Failures are logged, not
// returned.
func Save[T any](c *Cache, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("cache: marshal of %q failed: %v", key, err)
		return
	}

	entry := model.CacheEntry{Key: key, Value: data}
	err = c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		log.Printf("cache: write of %q failed: %v", key, err)
	}
}

// Delete removes the entry under key. Best-effort, like Save.
func (c *Cache) Delete(key string) {
	if err := c.db.Delete(&model.CacheEntry{}, "key = ?", key).Error; err != nil {
		log.Printf("cache: delete of %q failed: %v", key, err)
	}
}
