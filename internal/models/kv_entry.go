package models

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry is a single key/value pair persisted by the database-backed store.
// Values are always JSON documents.
type KVEntry struct {
	Key       string         `gorm:"column:entry_key;primaryKey;size:512"`
	Value     datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name stable across naming strategies.
func (KVEntry) TableName() string {
	return "kv_entries"
}
