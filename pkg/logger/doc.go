// Package logger provides the structured logging interface used across konadl.
//
// It wraps zerolog with a small interface so components can take a Logger
// and tests can swap in NewNopLogger or NewTestLogger.
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	log := logger.GetLogger().WithField("tags", "landscape")
//	log.InfoWithFields("page processed", map[string]interface{}{
//	    "page":       3,
//	    "downloaded": 12,
//	})
//
// Console output is written to stderr. When a log file is configured every
// entry is also appended to it.
package logger
