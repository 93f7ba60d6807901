package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a single HTTP exchange with the booru
func LogRequest(l Logger, method, url string, statusCode int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": elapsed.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.WarnWithFields("server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("client error", fields)
	default:
		l.DebugWithFields("request completed", fields)
	}
}

// LogPage logs the outcome of one processed page
func LogPage(l Logger, tags string, page int, downloaded, skipped, failed int) {
	l.WithFields(map[string]interface{}{
		"tags":       tags,
		"page":       page,
		"downloaded": downloaded,
		"skipped":    skipped,
		"failed":     failed,
	}).Info("page processed")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, cfg map[string]interface{}) {
	l = l.WithField("component", component)
	if len(cfg) > 0 {
		l = l.WithFields(cfg)
	}
	l.Debug("component started")
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
