package kvstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wildwatch/wildwatch-go/internal/errors"
)

// kvEntry is the single-table schema backing the SQLite store.
type kvEntry struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value []byte `gorm:"column:value"`
}

// TableName overrides the default GORM table name.
func (kvEntry) TableName() string {
	return "kv_entries"
}

// SQLiteStore implements KeyValueStore on a local SQLite file.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the local state database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("kvstore").
				Category(errors.CategoryStorage).
				Context("path", path).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("kvstore").
			Category(errors.CategoryStorage).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, errors.New(err).
			Component("kvstore").
			Category(errors.CategoryStorage).
			Context("operation", "auto_migrate").
			Build()
	}

	return &SQLiteStore{db: db}, nil
}

// Get decodes the stored value for key into dest.
func (s *SQLiteStore) Get(key string, dest any) (bool, error) {
	var entry kvEntry
	result := s.db.First(&entry, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, errors.New(result.Error).
			Component("kvstore").
			Category(errors.CategoryStorage).
			Context("key", key).
			Build()
	}
	if err := json.Unmarshal(entry.Value, dest); err != nil {
		// Corrupted value, treat as absent
		return false, nil
	}
	return true, nil
}

// Put stores the JSON encoding of value under key, upserting on conflict.
func (s *SQLiteStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.New(err).
			Component("kvstore").
			Category(errors.CategoryStorage).
			Context("key", key).
			Build()
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&kvEntry{Key: key, Value: raw})
	if result.Error != nil {
		return errors.New(result.Error).
			Component("kvstore").
			Category(errors.CategoryStorage).
			Context("key", key).
			Build()
	}
	return nil
}

// Delete removes the key; deleting an absent key is not an error.
func (s *SQLiteStore) Delete(key string) error {
	result := s.db.Delete(&kvEntry{}, "key = ?", key)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("kvstore").
			Category(errors.CategoryStorage).
			Context("key", key).
			Build()
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
