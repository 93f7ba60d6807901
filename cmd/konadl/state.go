package main

import (
	"fmt"

	"konadl/pkg/checkpoint"
	"konadl/pkg/config"
	"konadl/pkg/logger"
	"konadl/pkg/statedb"
	"konadl/pkg/stats"
)

// cursorStore is the progress surface shared by both backends
type cursorStore interface {
	Load() (map[string]int, error)
	Page(key string) (int, error)
	Save(key string, page int) error
	Delete(key string) error
	Keys() ([]string, error)
}

type statsStore interface {
	Load() (stats.Record, error)
	Save(r stats.Record) error
}

// stateBackend bundles the persistence chosen by the state config
type stateBackend struct {
	progress cursorStore
	stats    statsStore
	db       *statedb.DB // nil for the json backend
	location string
}

func openState(cfg *config.StateConfig, log logger.Logger) (*stateBackend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := statedb.Open(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return &stateBackend{
			progress: db.Progress(),
			stats:    db.Stats(),
			db:       db,
			location: cfg.Database,
		}, nil
	case config.BackendJSON, "":
		return &stateBackend{
			progress: checkpoint.NewStore(cfg.ProgressFile, log),
			stats:    stats.NewStore(cfg.StatsFile, log),
			location: cfg.ProgressFile,
		}, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

func (s *stateBackend) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
