// Package history records every resolution in a SQLite database.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"moul.io/zapgorm2"
)

var ErrClosed = errors.New("history database closed")

// Record is one handled link.
type Record struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	Platform  string    `gorm:"index"`
	Keyword   string
	// Input is the matched text, which is also the result cache key.
	Input  string
	URL    string
	Title  string
	Author string
	Cached bool
	// Error is empty for a successful resolution.
	Error    string
	Duration time.Duration
}

func (r *Record) Succeeded() bool {
	return r.Error == ""
}

// PlatformStats summarises the records for one platform.
type PlatformStats struct {
	Platform string
	Total    int64
	Failed   int64
	Cached   int64
}

type DB struct {
	db *gorm.DB
}

// Open opens or creates the database at path, migrating the schema.
func Open(path string) (*DB, error) {
	logger := zapgorm2.New(zap.L().Named("history"))
	logger.SetAsDefault()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if d.db == nil {
		return ErrClosed
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	d.db = nil
	return sqlDB.Close()
}

func (d *DB) Add(ctx context.Context, r *Record) error {
	if d.db == nil {
		return ErrClosed
	}
	return d.db.WithContext(ctx).Create(r).Error
}

// Recent returns up to limit records, newest first, optionally for one platform only.
func (d *DB) Recent(ctx context.Context, limit int, platform string) ([]Record, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	var records []Record
	q := d.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if platform != "" {
		q = q.Where("platform = ?", platform)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (d *DB) Stats(ctx context.Context) ([]PlatformStats, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	var stats []PlatformStats
	err := d.db.WithContext(ctx).Model(&Record{}).
		Select("platform, COUNT(*) AS total, SUM(CASE WHEN error != '' THEN 1 ELSE 0 END) AS failed, SUM(CASE WHEN cached THEN 1 ELSE 0 END) AS cached").
		Group("platform").
		Order("platform").
		Scan(&stats).Error
	return stats, err
}

// Prune deletes records created before the cutoff, returning how many were removed.
func (d *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	if d.db == nil {
		return 0, ErrClosed
	}
	result := d.db.WithContext(ctx).Where("created_at < ?", before).Delete(&Record{})
	return result.RowsAffected, result.Error
}
