package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
)

// DefaultExtension is used when a file URL carries no extension
const DefaultExtension = ".jpg"

// ErrExists is returned by Save when the destination already exists
var ErrExists = errors.New("file already exists")

// Filename derives the local name of a post's file: its id followed by the
// extension of the URL path, or DefaultExtension when there is none.
func Filename(id int64, fileURL string) string {
	ext := ""
	if u, err := url.Parse(fileURL); err == nil {
		ext = path.Ext(u.Path)
	}
	if ext == "" || ext == "." {
		ext = DefaultExtension
	}
	return strconv.FormatInt(id, 10) + ext
}

// Manager handles the destination directory of downloaded files
type Manager struct {
	outputDir string
}

// NewManager creates the output directory if needed
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Path returns the full path of name inside the output directory
func (m *Manager) Path(name string) string {
	return filepath.Join(m.outputDir, name)
}

// Exists reports whether name is already present in the output directory
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(m.Path(name))
	return err == nil
}

// Save writes data under name without ever replacing an existing file.
// The bytes go to a temporary file first, so a crash never leaves a
// truncated file under the final name.
func (m *Manager) Save(name string, data []byte) error {
	final := m.Path(name)

	tmp, err := os.CreateTemp(m.outputDir, "."+name+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	// A hard link fails when the target exists, which gives no-overwrite
	// semantics even if another process raced us to the same name.
	err = os.Link(tmpPath, final)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return ErrExists
	}

	// Filesystems without hard links fall back to check-then-rename.
	if m.Exists(name) {
		return ErrExists
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

// WriteFileAtomic replaces path with data via a synced temporary file and a
// rename, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("failed to write temporary file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync temporary file: %w", err))
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail(fmt.Errorf("failed to set permissions: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
