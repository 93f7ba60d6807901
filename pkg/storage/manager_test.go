package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		url  string
		want string
	}{
		{"png", 101, "https://konachan.net/image/abc/Konachan.com%20-%20101.png", "101.png"},
		{"jpg with query", 7, "https://konachan.net/jpeg/x/7.jpg?download=1", "7.jpg"},
		{"no extension", 42, "https://konachan.net/image/abc/file", "42.jpg"},
		{"trailing dot", 43, "https://konachan.net/image/abc/file.", "43.jpg"},
		{"dotted directory", 44, "https://cdn.v1.example/images/file", "44.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.id, tt.url))
		})
	}
}

func TestManagerSaveAndExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.False(t, m.Exists("1.jpg"))
	require.NoError(t, m.Save("1.jpg", []byte("image bytes")))
	assert.True(t, m.Exists("1.jpg"))

	content, err := os.ReadFile(m.Path("1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be cleaned up")
}

func TestManagerSaveNeverOverwrites(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(m.Path("5.png"), []byte("original"), 0644))
	assert.ErrorIs(t, m.Save("5.png", []byte("replacement")), ErrExists)

	content, err := os.ReadFile(m.Path("5.png"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestManagerConcurrentSaveSameName(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Save("9.jpg", []byte("same"))
		}()
	}
	wg.Wait()
	close(results)

	saved := 0
	for err := range results {
		if err == nil {
			saved++
		} else {
			assert.ErrorIs(t, err, ErrExists)
		}
	}
	assert.Equal(t, 1, saved)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "progress.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":2}`), 0644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(content))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
