package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/safeguard/internal/models"
)

const likeEscape = "!"

// DatabaseStore implements Store on top of the primary SQL database.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db}
}

// Get retrieves a value by key.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, ErrNotInitialised
	}

	var entry models.KVEntry
	err := s.db.WithContext(ensureContext(ctx)).Take(&entry, "entry_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return cloneBytes(entry.Value), true, nil
}

// Set upserts the value for a given key. Values must be valid JSON.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte) error {
	if s == nil {
		return ErrNotInitialised
	}
	if !json.Valid(value) {
		return fmt.Errorf("kvstore: value for %q is not valid JSON", key)
	}

	entry := models.KVEntry{
		Key:   key,
		Value: datatypes.JSON(cloneBytes(value)),
	}

	return s.db.WithContext(ensureContext(ctx)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entry).Error
}

// Delete removes keys from the store.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return ErrNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}

	return s.db.WithContext(ensureContext(ctx)).
		Where("entry_key IN ?", keys).
		Delete(&models.KVEntry{}).Error
}

// ScanPrefix returns all entries whose key begins with prefix.
func (s *DatabaseStore) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	if s == nil {
		return nil, ErrNotInitialised
	}

	var rows []models.KVEntry
	err := s.db.WithContext(ensureContext(ctx)).
		Where("entry_key LIKE ? ESCAPE '"+likeEscape+"'", escapeLike(prefix)+"%").
		Order("entry_key").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		// LIKE is case-insensitive on some engines.
		if !strings.HasPrefix(row.Key, prefix) {
			continue
		}
		entries = append(entries, Entry{Key: row.Key, Value: cloneBytes(row.Value)})
	}
	return entries, nil
}

// Ping verifies the database connection is usable.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	if s == nil {
		return ErrNotInitialised
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ensureContext(ctx))
}

// Close is a no-op; the database handle is owned by the caller.
func (s *DatabaseStore) Close() error {
	return nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(
		likeEscape, likeEscape+likeEscape,
		"%", likeEscape+"%",
		"_", likeEscape+"_",
	)
	return replacer.Replace(value)
}
