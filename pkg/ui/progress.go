package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"konadl/internal/downloader"
	"konadl/pkg/scraper"
)

const (
	ProgressBar   = "━"
	ProgressEmpty = "─"
	barWidth      = 20
)

// PageProgress prints one line per page and, in verbose mode, one line per
// file. Its methods match the scraper hooks.
type PageProgress struct {
	mu         sync.Mutex
	tags       string
	totalPages int
	verbose    bool
	images     int
	bytes      int64
	failed     int
	startTime  time.Time
}

// NewPageProgress creates a progress printer for one query
func NewPageProgress(tags string, verbose bool) *PageProgress {
	return &PageProgress{tags: tags, verbose: verbose, startTime: time.Now()}
}

// Start is the scraper OnStart hook
func (p *PageProgress) Start(startPage, totalPages int) {
	p.mu.Lock()
	p.totalPages = totalPages
	p.mu.Unlock()

	query := p.tags
	if query == "" {
		query = "(all posts)"
	}
	PrintInfo("Tags", query)
	PrintInfo("Starting page", fmt.Sprint(startPage))
	if totalPages > 0 {
		PrintInfo("Total pages", fmt.Sprint(totalPages))
	}
}

// Result is the scraper OnResult hook
func (p *PageProgress) Result(r downloader.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch r.Status {
	case downloader.StatusDownloaded:
		p.images++
		p.bytes += r.Bytes
		if p.verbose {
			printf(false, "  %s %s %s\n", Green("✓"), r.Filename, Dim(FormatSize(r.Bytes)))
		}
	case downloader.StatusFailed:
		p.failed++
		if p.verbose {
			printf(false, "  %s %d %s\n", Red("✗"), r.Post.ID, Dim(fmt.Sprint(r.Err)))
		}
	case downloader.StatusSkippedExisting:
		if p.verbose {
			printf(false, "  %s %s\n", Dim("="), Dim(r.Filename))
		}
	}
}

// Page is the scraper OnPage hook
func (p *PageProgress) Page(r scraper.PageReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := r.Outcome
	line := fmt.Sprintf("%s %s %s",
		Magenta("Page"),
		p.pageLabel(r.Page),
		p.bar(r.Page),
	)
	line += fmt.Sprintf(" • %s new", Green(fmt.Sprint(out.Downloaded)))
	if out.Skipped > 0 {
		line += fmt.Sprintf(" • %d existing", out.Skipped)
	}
	if r.Filtered > 0 {
		line += fmt.Sprintf(" • %d filtered", r.Filtered)
	}
	if out.Failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", out.Failed))
	}
	if out.Stalled {
		line += " • " + Yellow(fmt.Sprintf("stalled, %d abandoned", out.Incomplete))
	}
	line += " • " + Dim(FormatSize(out.Bytes))
	printf(false, "%s\n", line)
}

func (p *PageProgress) pageLabel(page int) string {
	if p.totalPages > 0 {
		return fmt.Sprintf("%d/%d", page, p.totalPages)
	}
	return fmt.Sprint(page)
}

// bar renders page progress, or nothing when the total is unknown
func (p *PageProgress) bar(page int) string {
	if p.totalPages <= 0 {
		return ""
	}
	filled := page * barWidth / p.totalPages
	if filled > barWidth {
		filled = barWidth
	}
	return "[" + strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled) + "]"
}

// PrintSummary prints the end-of-session report
func PrintSummary(s *scraper.Summary) {
	printf(false, "\n")
	switch {
	case s.StopReason.Success():
		PrintSuccess(fmt.Sprintf("Finished: %s", s.StopReason))
	case s.StopReason == scraper.StopInterrupted:
		PrintWarning("Interrupted, progress saved")
	case s.ListingErr != nil:
		PrintError(fmt.Sprintf("Stopped: %s", s.StopReason), s.ListingErr)
	default:
		PrintWarning(fmt.Sprintf("Stopped: %s", s.StopReason))
	}

	PrintInfo("Images downloaded", fmt.Sprint(s.Images))
	PrintInfo("Size", FormatSize(s.Bytes))
	PrintInfo("Time", FormatDuration(s.Duration))
	if s.LastPage > 0 {
		PrintInfo("Last completed page", fmt.Sprint(s.LastPage))
	}
	if s.Failed > 0 || s.Incomplete > 0 {
		PrintInfo("Failed / abandoned", fmt.Sprintf("%d / %d", s.Failed, s.Incomplete))
	}
}
