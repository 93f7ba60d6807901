package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"konadl/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"empty level defaults to info", &config.LoggingConfig{}, false},
		{"invalid level", &config.LoggingConfig{Level: "verbose"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "konadl.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
			if tt.cfg.File != "" {
				_, statErr := os.Stat(tt.cfg.File)
				assert.NoError(t, statErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"loud", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.WithField("tags", "landscape").
		WithFields(map[string]interface{}{"page": 3, "unsafe": false}).
		Info("page processed")

	out := buf.String()
	assert.Contains(t, out, "page processed")
	assert.Contains(t, out, `"tags":"landscape"`)
	assert.Contains(t, out, `"page":3`)
	assert.Contains(t, out, `"unsafe":false`)
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	_ = l.WithField("child", "yes")
	l.Info("parent")

	assert.NotContains(t, buf.String(), "child")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	assert.Same(t, l, l.WithError(nil))

	l.WithError(errors.New("connection reset")).Error("listing failed")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.InfoWithFields("typed", map[string]interface{}{
		"bytes":   int64(2048),
		"elapsed": 1500 * time.Millisecond,
		"ratio":   0.5,
		"tags":    []string{"a", "b"},
	})

	out := buf.String()
	assert.Contains(t, out, `"bytes":2048`)
	assert.Contains(t, out, `"tags":["a","b"]`)
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug", NoColor: true}))
	assert.NotNil(t, GetLogger())

	Info("info message")
	WithField("key", "value").Info("with field")
	WithError(errors.New("boom")).Error("with error")
}

func TestTestLoggerCapturesFields(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("page", 2)
	child.Warn("stalled")
	tl.Info("done")

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].Fields["page"])
	assert.True(t, tl.HasMessage("WARN", "stall"))
	assert.Equal(t, 1, tl.Count("INFO"))

	tl.Reset()
	assert.Empty(t, tl.Entries())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("a", 1).WithError(errors.New("x")).Error("ignored")
	assert.Nil(t, l.GetZerolog())
}
