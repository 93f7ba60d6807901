package scraper

import (
	"context"

	"konadl/pkg/booru"
	"konadl/pkg/stats"
)

// Fetcher defines the board operations the driver needs
type Fetcher interface {
	ListPage(ctx context.Context, tags string, page, limit int) ([]booru.Post, error)
	TotalCount(ctx context.Context, tags string) (int, error)
	FetchContent(ctx context.Context, url string) ([]byte, error)
}

// ProgressStore keeps the last completed page per query
type ProgressStore interface {
	Page(key string) (int, error)
	Save(key string, page int) error
}

// StatsStore keeps the cumulative counters
type StatsStore interface {
	Load() (stats.Record, error)
	Save(r stats.Record) error
}
