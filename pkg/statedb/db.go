// Package statedb stores resume cursors, cumulative statistics and a session
// history in a SQLite database. It is the alternative to the JSON files of
// the checkpoint and stats packages.
package statedb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"konadl/pkg/logger"
	"konadl/pkg/stats"
)

// Cursor is the last completed page of one query
type Cursor struct {
	Tags      string `gorm:"primaryKey"`
	Page      int    `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (Cursor) TableName() string { return "cursors" }

// Totals is the single row holding cumulative statistics
type Totals struct {
	ID        uint `gorm:"primaryKey"`
	Bytes     int64
	Seconds   float64
	Images    int64
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (Totals) TableName() string { return "totals" }

// Session is one finished run
type Session struct {
	ID         string `gorm:"primaryKey"`
	Tags       string `gorm:"index"`
	FirstPage  int
	LastPage   int
	Images     int64
	Bytes      int64
	Seconds    float64
	StopReason string
	StartedAt  time.Time
	CreatedAt  time.Time
}

// TableName specifies the table name for GORM
func (Session) TableName() string { return "sessions" }

// BeforeCreate generates an id when the caller did not supply one
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

const totalsRowID = 1

// DB wraps the gorm connection
type DB struct {
	gorm   *gorm.DB
	logger logger.Logger
}

// Open opens or creates the database at path and migrates its schema.
// ":memory:" gives a private in-memory database.
func Open(path string, log logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database alive for the lifetime of the handle.
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&Cursor{}, &Totals{}, &Session{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	log.DebugWithFields("state database opened", map[string]interface{}{"path": path})
	return &DB{gorm: gdb, logger: log}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Progress returns the cursor store view of the database
func (d *DB) Progress() *ProgressStore {
	return &ProgressStore{db: d}
}

// Stats returns the statistics store view of the database
func (d *DB) Stats() *StatsStore {
	return &StatsStore{db: d}
}

// RecordSession appends a finished run to the history
func (d *DB) RecordSession(s *Session) error {
	if err := d.gorm.Create(s).Error; err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// RecentSessions returns the latest runs, newest first
func (d *DB) RecentSessions(limit int) ([]Session, error) {
	var sessions []Session
	err := d.gorm.Order("created_at DESC").Limit(limit).Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ProgressStore keeps resume cursors in the cursors table
type ProgressStore struct {
	db *DB
}

// Load returns every cursor
func (p *ProgressStore) Load() (map[string]int, error) {
	var cursors []Cursor
	if err := p.db.gorm.Find(&cursors).Error; err != nil {
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}
	out := make(map[string]int, len(cursors))
	for _, c := range cursors {
		out[c.Tags] = c.Page
	}
	return out, nil
}

// Page returns the cursor of key, 0 when absent
func (p *ProgressStore) Page(key string) (int, error) {
	var c Cursor
	err := p.db.gorm.Where("tags = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	return c.Page, nil
}

// Save upserts the cursor of key, never lowering a stored page
func (p *ProgressStore) Save(key string, page int) error {
	if page < 0 {
		return fmt.Errorf("invalid page %d", page)
	}
	c := Cursor{Tags: key, Page: page, UpdatedAt: time.Now()}
	err := p.db.gorm.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tags"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"page":       gorm.Expr("MAX(page, excluded.page)"),
			"updated_at": c.UpdatedAt,
		}),
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Delete forgets the cursor of key
func (p *ProgressStore) Delete(key string) error {
	if err := p.db.gorm.Where("tags = ?", key).Delete(&Cursor{}).Error; err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}
	return nil
}

// Keys lists stored query keys in sorted order
func (p *ProgressStore) Keys() ([]string, error) {
	progress, err := p.Load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(progress))
	for k := range progress {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// StatsStore keeps cumulative totals in the totals table
type StatsStore struct {
	db *DB
}

// Load returns the stored totals, zeros when none were saved
func (s *StatsStore) Load() (stats.Record, error) {
	var t Totals
	err := s.db.gorm.First(&t, totalsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return stats.Record{}, nil
	}
	if err != nil {
		return stats.Record{}, fmt.Errorf("failed to load totals: %w", err)
	}
	return stats.Record{
		TotalDownloadedBytes:  t.Bytes,
		TotalTimeSeconds:      t.Seconds,
		TotalImagesDownloaded: t.Images,
	}, nil
}

// Save overwrites the stored totals
func (s *StatsStore) Save(r stats.Record) error {
	t := Totals{
		ID:      totalsRowID,
		Bytes:   r.TotalDownloadedBytes,
		Seconds: r.TotalTimeSeconds,
		Images:  r.TotalImagesDownloaded,
	}
	if err := s.db.gorm.Save(&t).Error; err != nil {
		return fmt.Errorf("failed to save totals: %w", err)
	}
	return nil
}
