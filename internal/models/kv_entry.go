package models

import "time"

// KVEntry backs the fixed-key local store.
type KVEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
