// Package stats keeps cumulative download statistics across sessions.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"konadl/pkg/logger"
	"konadl/pkg/storage"
)

// Record is the cumulative total of every finished session
type Record struct {
	TotalDownloadedBytes  int64   `json:"total_downloaded_bytes"`
	TotalTimeSeconds      float64 `json:"total_time_seconds"`
	TotalImagesDownloaded int64   `json:"total_images_downloaded"`
}

// Session is what a single run contributes to the Record
type Session struct {
	Bytes    int64
	Images   int64
	Duration time.Duration
}

// Add returns the record with the session folded in
func (r Record) Add(s Session) Record {
	r.TotalDownloadedBytes += s.Bytes
	r.TotalImagesDownloaded += s.Images
	r.TotalTimeSeconds += s.Duration.Seconds()
	return r
}

// Store persists a Record as a flat JSON object
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a stats store backed by the file at path
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{path: path, logger: log}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored record, or zeros when the file is missing or
// malformed.
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("failed to read stats file: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		s.logger.WarnWithFields("stats file is malformed, starting from zero", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return Record{}, nil
	}
	return r, nil
}

// Save overwrites the stored record
func (s *Store) Save(r Record) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	if err := storage.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}
