package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"konadl/pkg/logger"
)

func TestLoadMissingIsZero(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "stats.json"), nil)

	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Record{}, r)
}

func TestAccumulatesAcrossSessions(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "stats.json"), nil)

	for _, session := range []Session{
		{Bytes: 1000, Images: 1, Duration: 1500 * time.Millisecond},
		{Bytes: 2000, Images: 1, Duration: 500 * time.Millisecond},
	} {
		r, err := s.Load()
		require.NoError(t, err)
		require.NoError(t, s.Save(r.Add(session)))
	}

	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(3000), r.TotalDownloadedBytes)
	assert.Equal(t, int64(2), r.TotalImagesDownloaded)
	assert.InDelta(t, 2.0, r.TotalTimeSeconds, 1e-9)
}

func TestFileLayout(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "stats.json"), nil)
	require.NoError(t, s.Save(Record{TotalDownloadedBytes: 10, TotalTimeSeconds: 1.5, TotalImagesDownloaded: 2}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_downloaded_bytes":10,"total_time_seconds":1.5,"total_images_downloaded":2}`, string(data))
}

func TestMalformedLoadsZero(t *testing.T) {
	tl := logger.NewTestLogger()
	s := NewStore(filepath.Join(t.TempDir(), "stats.json"), tl)
	require.NoError(t, os.WriteFile(s.Path(), []byte("[]"), 0644))

	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Record{}, r)
	assert.True(t, tl.HasMessage("WARN", "malformed"))
}

func TestPartialFileKeepsKnownKeys(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "stats.json"), nil)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"total_images_downloaded": 9}`), 0644))

	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(9), r.TotalImagesDownloaded)
	assert.Zero(t, r.TotalDownloadedBytes)
}
