package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"konadl/internal/downloader"
	"konadl/pkg/booru"
	errs "konadl/pkg/errors"
	"konadl/pkg/logger"
	"konadl/pkg/metrics"
	"konadl/pkg/stats"
)

// StopReason tells why the page loop ended
type StopReason string

const (
	StopEndPage       StopReason = "end-page-reached"
	StopNoMorePosts   StopReason = "no-more-posts"
	StopSkipThreshold StopReason = "skip-threshold"
	StopFetchFailed   StopReason = "fetch-failed"
	StopInterrupted   StopReason = "interrupted"
	StopPersistFailed StopReason = "persist-failed"
)

// Success reports whether the run ended without a failure or interruption
func (r StopReason) Success() bool {
	return r == StopEndPage || r == StopNoMorePosts || r == StopSkipThreshold
}

// Options configures one run over a query
type Options struct {
	Tags string
	// StartPage wins over stored progress when >= 1
	StartPage int
	// EndPage is inclusive; 0 means unbounded
	EndPage          int
	Limit            int
	Unsafe           bool
	StopAfterSkipped int
	Workers          int
	Timeout          time.Duration
	// ItemBudget is the worst-case time one download may spend in retries
	ItemBudget time.Duration
	// BatchTimeout overrides the computed per-page deadline when > 0
	BatchTimeout time.Duration
	PageDelay    time.Duration

	Fetcher  Fetcher
	Storage  downloader.Storage
	Progress ProgressStore
	Stats    StatsStore
	Logger   logger.Logger

	// OnStart is called once the start page and total are known
	OnStart func(startPage, totalPages int)
	// OnPage is called after each processed page
	OnPage func(PageReport)
	// OnResult is called for every resolved download
	OnResult func(downloader.Result)
}

// PageReport describes one processed page
type PageReport struct {
	Page       int
	TotalPages int
	Listed     int
	Filtered   int
	Outcome    downloader.PageOutcome
}

// Summary is the result of one session
type Summary struct {
	SessionID      string
	Tags           string
	StartedAt      time.Time
	FirstPage      int
	LastPage       int
	PagesProcessed int
	TotalPosts     int
	TotalPages     int
	Images         int64
	Bytes          int64
	Skipped        int
	Failed         int
	Incomplete     int
	Filtered       int
	Stalls         int
	Duration       time.Duration
	StopReason     StopReason
	// ListingErr is the permanent error that ended the loop, if any
	ListingErr error
	// Totals is the cumulative record written at finalization
	Totals stats.Record
}

func (o *Options) batchTimeout() time.Duration {
	if o.BatchTimeout > 0 {
		return o.BatchTimeout
	}
	return downloader.BatchTimeout(o.Timeout, o.ItemBudget)
}

// Run walks the listing pages for opts.Tags until a stop condition, then
// folds the session totals into the stats store. Finalization runs on every
// exit path and ignores ctx; the returned error only reports persistence
// failures.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Fetcher == nil || opts.Storage == nil || opts.Progress == nil || opts.Stats == nil {
		return nil, errors.New("scraper: fetcher, storage, progress and stats are required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	base := opts.Logger
	if base == nil {
		base = logger.GetLogger()
	}

	summary := &Summary{
		SessionID: uuid.NewString(),
		Tags:      opts.Tags,
		StartedAt: time.Now(),
	}
	log := base.WithFields(map[string]interface{}{
		"session_id": summary.SessionID,
		"tags":       opts.Tags,
	})

	summary.FirstPage = resolveStartPage(opts, log)

	// display only; a failure here never stops the run
	if total, err := opts.Fetcher.TotalCount(ctx, opts.Tags); err != nil {
		log.WarnWithFields("could not fetch total post count", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		summary.TotalPosts = total
		summary.TotalPages = (total + opts.Limit - 1) / opts.Limit
	}

	log.InfoWithFields("starting session", map[string]interface{}{
		"start_page":  summary.FirstPage,
		"end_page":    opts.EndPage,
		"total_posts": summary.TotalPosts,
		"total_pages": summary.TotalPages,
		"unsafe":      opts.Unsafe,
	})
	if opts.OnStart != nil {
		opts.OnStart(summary.FirstPage, summary.TotalPages)
	}

	loopErr := runPages(ctx, opts, summary, log)
	finalErr := finalize(opts, summary, log)
	return summary, errors.Join(loopErr, finalErr)
}

func resolveStartPage(opts Options, log logger.Logger) int {
	if opts.StartPage >= 1 {
		return opts.StartPage
	}
	stored, err := opts.Progress.Page(opts.Tags)
	if err != nil {
		log.WarnWithFields("could not read progress, starting from page 1", map[string]interface{}{
			"error": err.Error(),
		})
		return 1
	}
	return stored + 1
}

func runPages(ctx context.Context, opts Options, summary *Summary, log logger.Logger) error {
	skipped := 0

	for page := summary.FirstPage; ; page++ {
		if opts.EndPage > 0 && page > opts.EndPage {
			summary.StopReason = StopEndPage
			return nil
		}
		if ctx.Err() != nil {
			summary.StopReason = StopInterrupted
			return nil
		}

		posts, err := opts.Fetcher.ListPage(ctx, opts.Tags, page, opts.Limit)
		if err != nil {
			if errs.IsCanceled(err) || ctx.Err() != nil {
				summary.StopReason = StopInterrupted
				return nil
			}
			metrics.ObservePage("failed")
			log.WithError(err).WithField("page", page).Error("listing failed, stopping")
			summary.StopReason = StopFetchFailed
			summary.ListingErr = err
			return nil
		}
		if len(posts) == 0 {
			metrics.ObservePage("empty")
			log.InfoWithFields("no more posts", map[string]interface{}{"page": page})
			summary.StopReason = StopNoMorePosts
			return nil
		}

		report := PageReport{Page: page, TotalPages: summary.TotalPages, Listed: len(posts)}
		candidates := posts
		if !opts.Unsafe {
			candidates, report.Filtered = booru.FilterSafe(posts)
			summary.Filtered += report.Filtered
			metrics.ObserveFiltered(report.Filtered)
		}

		if len(candidates) > 0 {
			report.Outcome = downloader.DownloadPage(ctx, candidates, downloader.Options{
				Workers:      opts.Workers,
				BatchTimeout: opts.batchTimeout(),
				Fetcher:      opts.Fetcher,
				Storage:      opts.Storage,
				Logger:       log,
				OnResult:     opts.OnResult,
			})
		}
		out := report.Outcome
		summary.Images += int64(out.Downloaded)
		summary.Bytes += out.Bytes
		summary.Skipped += out.Skipped
		summary.Failed += out.Failed
		summary.Incomplete += out.Incomplete
		if out.Stalled {
			summary.Stalls++
		}

		// an interrupted page is left for the next run
		if out.Interrupted {
			summary.StopReason = StopInterrupted
			return nil
		}

		if err := opts.Progress.Save(opts.Tags, page); err != nil {
			summary.StopReason = StopPersistFailed
			return fmt.Errorf("save progress for page %d: %w", page, err)
		}
		summary.LastPage = page
		summary.PagesProcessed++

		switch {
		case len(candidates) == 0:
			metrics.ObservePage("filtered")
		case out.Downloaded > 0:
			metrics.ObservePage("downloaded")
		default:
			metrics.ObservePage("skipped")
		}
		logger.LogPage(log, opts.Tags, page, out.Downloaded, out.Skipped, out.Failed)
		if opts.OnPage != nil {
			opts.OnPage(report)
		}

		if out.Downloaded > 0 {
			skipped = 0
		} else if opts.StopAfterSkipped > 0 {
			skipped++
			if skipped >= opts.StopAfterSkipped {
				log.InfoWithFields("too many consecutive pages without downloads", map[string]interface{}{
					"page":    page,
					"skipped": skipped,
				})
				summary.StopReason = StopSkipThreshold
				return nil
			}
		}

		if opts.PageDelay > 0 {
			select {
			case <-time.After(opts.PageDelay):
			case <-ctx.Done():
			}
		}
	}
}

// finalize adds the session to the cumulative stats. It does not consult
// any context so an interrupt cannot cut it short.
func finalize(opts Options, summary *Summary, log logger.Logger) error {
	summary.Duration = time.Since(summary.StartedAt)

	prior, err := opts.Stats.Load()
	if err != nil {
		log.WithError(err).Warn("could not read stats, starting from zero")
		prior = stats.Record{}
	}
	summary.Totals = prior.Add(stats.Session{
		Bytes:    summary.Bytes,
		Images:   summary.Images,
		Duration: summary.Duration,
	})

	if err := opts.Stats.Save(summary.Totals); err != nil {
		log.WithError(err).Error("failed to save stats")
		return fmt.Errorf("save stats: %w", err)
	}

	log.InfoWithFields("session finished", map[string]interface{}{
		"stop_reason": string(summary.StopReason),
		"pages":       summary.PagesProcessed,
		"images":      summary.Images,
		"bytes":       summary.Bytes,
		"failed":      summary.Failed,
		"incomplete":  summary.Incomplete,
		"duration":    summary.Duration.String(),
	})
	return nil
}
