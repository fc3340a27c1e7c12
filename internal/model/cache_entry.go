package model

import "time"

// CacheEntry is one row of the local cache: a serialized entity collection
// under a fixed, versioned key. The cache survives process restarts and
// has no network dependency.
type CacheEntry struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}
