package downloader

import (
	"context"
	"errors"
	"sync"
	"time"

	"konadl/pkg/booru"
	"konadl/pkg/logger"
	"konadl/pkg/metrics"
	"konadl/pkg/storage"
)

// ErrMissingID marks a post that cannot be given a file name
var ErrMissingID = errors.New("post has no id")

// BaseAllowance is the fixed part of every page's batch deadline
const BaseAllowance = 60 * time.Second

// Status is the outcome of one post
type Status string

const (
	StatusDownloaded      Status = "downloaded"
	StatusSkippedExisting Status = "skipped-existing"
	StatusSkippedNoURL    Status = "skipped-no-url"
	StatusFailed          Status = "failed"
	StatusIncomplete      Status = "incomplete"
)

// ContentFetcher downloads file bodies
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) ([]byte, error)
}

// Storage is the destination of downloaded files
type Storage interface {
	Exists(name string) bool
	Save(name string, data []byte) error
}

// Result is the outcome of one post
type Result struct {
	Post     booru.Post
	Filename string
	Status   Status
	Bytes    int64
	Err      error
	Duration time.Duration
}

// PageOutcome summarizes one page's downloads
type PageOutcome struct {
	Attempted  int
	Downloaded int
	// Skipped counts both existing files and posts without a URL
	Skipped    int
	Failed     int
	Incomplete int
	Bytes      int64
	// Stalled is set when the batch deadline expired before every post resolved
	Stalled bool
	// Interrupted is set when the caller's context ended first
	Interrupted bool
	Results     []Result
}

// Options configures DownloadPage
type Options struct {
	Workers int
	// BatchTimeout bounds the whole page; zero means no deadline
	BatchTimeout time.Duration
	Fetcher      ContentFetcher
	Storage      Storage
	Logger       logger.Logger
	// OnResult is called from the collecting goroutine as each post resolves
	OnResult func(Result)
}

// BatchTimeout computes a page deadline from the per-request timeout and the
// worst-case time one item can spend in retries.
func BatchTimeout(perRequest, itemBudget time.Duration) time.Duration {
	return BaseAllowance + perRequest + itemBudget
}

type job struct {
	index int
	post  booru.Post
}

// pagePool runs the downloads of a single page
type pagePool struct {
	numWorkers  int
	jobQueue    chan job
	resultQueue chan indexedResult
	wg          sync.WaitGroup
	ctx         context.Context
	fetcher     ContentFetcher
	storage     Storage
	logger      logger.Logger
}

type indexedResult struct {
	index  int
	result Result
}

// DownloadPage downloads every post with at most opts.Workers in flight and
// returns once all posts resolved, the batch deadline expired, or ctx ended.
// Posts still unresolved at that point are reported as incomplete; their
// workers are cancelled and not waited for.
func DownloadPage(ctx context.Context, posts []booru.Post, opts Options) PageOutcome {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	outcome := PageOutcome{Attempted: len(posts), Results: make([]Result, len(posts))}
	if len(posts) == 0 {
		return outcome
	}

	batchCtx, cancel := context.WithCancel(ctx)
	if opts.BatchTimeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, opts.BatchTimeout)
	}
	defer cancel()

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(posts) {
		workers = len(posts)
	}

	pool := &pagePool{
		numWorkers:  workers,
		jobQueue:    make(chan job, len(posts)),
		resultQueue: make(chan indexedResult, len(posts)),
		ctx:         batchCtx,
		fetcher:     opts.Fetcher,
		storage:     opts.Storage,
		logger:      log,
	}
	for i, p := range posts {
		pool.jobQueue <- job{index: i, post: p}
	}
	close(pool.jobQueue)
	pool.start()

	resolved := make([]bool, len(posts))
	record := func(r indexedResult) {
		if resolved[r.index] {
			return
		}
		resolved[r.index] = true
		outcome.Results[r.index] = r.result
		if opts.OnResult != nil {
			opts.OnResult(r.result)
		}
	}

	remaining := len(posts)
collect:
	for remaining > 0 {
		select {
		case r := <-pool.resultQueue:
			if r.result.Status != StatusIncomplete {
				record(r)
				remaining--
			}
		case <-batchCtx.Done():
			break collect
		}
	}

	if remaining > 0 {
		// keep whatever finished right before the deadline
	drain:
		for {
			select {
			case r := <-pool.resultQueue:
				if r.result.Status != StatusIncomplete {
					record(r)
				}
			default:
				break drain
			}
		}

		settleUnresolved(ctx, batchCtx, posts, resolved, &outcome)
	}

	for _, r := range outcome.Results {
		switch r.Status {
		case StatusDownloaded:
			outcome.Downloaded++
			outcome.Bytes += r.Bytes
		case StatusSkippedExisting, StatusSkippedNoURL:
			outcome.Skipped++
		case StatusFailed:
			outcome.Failed++
		case StatusIncomplete:
			outcome.Incomplete++
		}
	}

	if outcome.Stalled {
		log.WarnWithFields("page stalled, abandoning unresolved downloads", map[string]interface{}{
			"resolved":   outcome.Attempted - outcome.Incomplete,
			"incomplete": outcome.Incomplete,
			"timeout":    opts.BatchTimeout.String(),
		})
	}
	return outcome
}

// settleUnresolved marks posts that never reported as incomplete. The page
// counts as stalled or interrupted only if at least one such post remains.
func settleUnresolved(ctx, batchCtx context.Context, posts []booru.Post, resolved []bool, outcome *PageOutcome) {
	unresolved := 0
	for i, done := range resolved {
		if done {
			continue
		}
		unresolved++
		outcome.Results[i] = Result{
			Post:     posts[i],
			Filename: filenameFor(posts[i]),
			Status:   StatusIncomplete,
			Err:      batchCtx.Err(),
		}
	}
	if unresolved == 0 {
		return
	}

	if ctx.Err() != nil {
		outcome.Interrupted = true
	} else if errors.Is(batchCtx.Err(), context.DeadlineExceeded) {
		outcome.Stalled = true
		metrics.ObserveStall()
	}
}

func (p *pagePool) start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *pagePool) worker(id int) {
	defer p.wg.Done()

	for j := range p.jobQueue {
		if p.ctx.Err() != nil {
			return
		}

		result := p.processJob(j.post, id)
		// resultQueue holds one slot per post, so this never blocks
		p.resultQueue <- indexedResult{index: j.index, result: result}
	}
}

func filenameFor(post booru.Post) string {
	if post.FileURL == "" || post.ID <= 0 {
		return ""
	}
	return storage.Filename(post.ID, post.FileURL)
}

// processJob handles a single post
func (p *pagePool) processJob(post booru.Post, workerID int) Result {
	start := time.Now()
	result := Result{Post: post, Filename: filenameFor(post)}

	finish := func(status Status) Result {
		result.Status = status
		result.Duration = time.Since(start)
		metrics.ObserveDownload(string(status), result.Bytes)
		return result
	}

	if post.FileURL == "" {
		return finish(StatusSkippedNoURL)
	}
	if post.ID <= 0 {
		result.Err = ErrMissingID
		p.logger.WarnWithFields("post has no id, cannot name its file", map[string]interface{}{
			"worker_id": workerID,
			"url":       post.FileURL,
		})
		return finish(StatusFailed)
	}
	if p.storage.Exists(result.Filename) {
		return finish(StatusSkippedExisting)
	}

	metrics.IncActiveDownloads()
	defer metrics.DecActiveDownloads()

	data, err := p.fetcher.FetchContent(p.ctx, post.FileURL)
	if err != nil {
		result.Err = err
		if p.ctx.Err() != nil {
			result.Status = StatusIncomplete
			return result
		}
		p.logger.WarnWithFields("download failed", map[string]interface{}{
			"worker_id": workerID,
			"post_id":   post.ID,
			"error":     err.Error(),
		})
		return finish(StatusFailed)
	}

	// DownloadPage has already given up on this post
	if err := p.ctx.Err(); err != nil {
		result.Err = err
		result.Status = StatusIncomplete
		return result
	}

	if err := p.storage.Save(result.Filename, data); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return finish(StatusSkippedExisting)
		}
		result.Err = err
		p.logger.WarnWithFields("saving file failed", map[string]interface{}{
			"worker_id": workerID,
			"file":      result.Filename,
			"error":     err.Error(),
		})
		return finish(StatusFailed)
	}

	result.Bytes = int64(len(data))
	p.logger.DebugWithFields("downloaded", map[string]interface{}{
		"worker_id": workerID,
		"file":      result.Filename,
		"size":      result.Bytes,
	})
	return finish(StatusDownloaded)
}
