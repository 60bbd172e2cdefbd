package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the single-table layout of the "disk" backend.
type Record struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "kv_records" }

// DiskStore backs records with an embedded SQLite database.
type DiskStore struct {
	db *gorm.DB
}

var _ Store = (*DiskStore)(nil)

// NewDisk prepares the schema and returns the store.
func NewDisk(db *gorm.DB) (*DiskStore, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &DiskStore{db: db}, nil
}

func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec.Value, true, nil
}

func (s *DiskStore) Set(ctx context.Context, key string, value []byte) error {
	rec := Record{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rec).Error
}

func (s *DiskStore) Delete(ctx context.Context, key string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&Record{}, "key = ?", key)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update performs the read-modify-write inside one transaction; SQLite
// serializes writers, so a concurrent mutation of the same key cannot be lost.
func (s *DiskStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		found := true
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
		} else if err != nil {
			return err
		}

		var old []byte
		if found {
			old = rec.Value
		}
		next, err := fn(old, found)
		if err != nil {
			return err
		}

		rec = Record{Key: key, Value: next, UpdatedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rec).Error
	})
}
