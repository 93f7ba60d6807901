package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"konadl/pkg/logger"
	"konadl/pkg/storage"
)

// Store persists the last completed page per query key in a JSON object
// such as {"hatsune_miku": 12, "": 3}.
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a progress store backed by the file at path
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

// Load reads every stored cursor. A missing file yields an empty map; a
// malformed one is logged and also yields an empty map.
func (s *Store) Load() (map[string]int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}

	progress := map[string]int{}
	if err := json.Unmarshal(data, &progress); err != nil {
		s.logger.WarnWithFields("progress file is malformed, starting fresh", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return map[string]int{}, nil
	}
	if progress == nil {
		// a literal null decodes into a nil map
		progress = map[string]int{}
	}
	return progress, nil
}

// Page returns the last completed page for key, 0 when there is none
func (s *Store) Page(key string) (int, error) {
	progress, err := s.Load()
	if err != nil {
		return 0, err
	}
	return progress[key], nil
}

// Save records page as completed for key. Other keys are preserved, and a
// page lower than the stored one leaves the stored value in place.
func (s *Store) Save(key string, page int) error {
	if page < 0 {
		return fmt.Errorf("invalid page %d", page)
	}

	progress, err := s.Load()
	if err != nil {
		return err
	}
	if current, ok := progress[key]; ok && current >= page {
		return nil
	}
	progress[key] = page

	if err := s.write(progress); err != nil {
		return err
	}

	s.logger.DebugWithFields("progress saved", map[string]interface{}{
		"tags": key,
		"page": page,
	})
	return nil
}

// Delete forgets the cursor of key
func (s *Store) Delete(key string) error {
	progress, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := progress[key]; !ok {
		return nil
	}
	delete(progress, key)
	return s.write(progress)
}

// Keys lists every stored query key in sorted order
func (s *Store) Keys() ([]string, error) {
	progress, err := s.Load()
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

func (s *Store) write(progress map[string]int) error {
	data, err := json.MarshalIndent(progress, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := storage.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}
