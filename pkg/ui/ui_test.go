package ui

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"konadl/internal/downloader"
	"konadl/pkg/booru"
	"konadl/pkg/scraper"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetQuiet(false)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetQuiet(false)
	})
	return &buf
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.00 TB"},
		{2048 * 1024 * 1024 * 1024 * 1024, "2048.00 TB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.bytes), "bytes=%d", tt.bytes)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m05s", FormatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
}

func TestPrintersWithoutColor(t *testing.T) {
	buf := captureOutput(t)

	PrintInfo("Tags", "landscape")
	PrintError("listing failed", errors.New("timeout"))
	PrintWarning("careful")

	out := buf.String()
	assert.Contains(t, out, "Tags: landscape\n")
	assert.Contains(t, out, "listing failed: timeout\n")
	assert.Contains(t, out, "careful\n")
	assert.NotContains(t, out, "\033[")
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := captureOutput(t)
	SetQuiet(true)
	assert.True(t, IsQuietMode())

	PrintInfo("Tags", "sky")
	PrintSuccess("done")
	PrintError("broken")

	assert.Equal(t, "broken\n", buf.String())
}

func TestColorize(t *testing.T) {
	captureOutput(t)
	SetColor(true)
	assert.Equal(t, "\033[32mok\033[0m", Green("ok"))
	SetColor(false)
	assert.Equal(t, "ok", Green("ok"))
}

func TestPageProgress(t *testing.T) {
	buf := captureOutput(t)

	p := NewPageProgress("landscape", true)
	p.Start(3, 10)
	p.Result(downloader.Result{Filename: "42.png", Status: downloader.StatusDownloaded, Bytes: 2048})
	p.Result(downloader.Result{Post: booru.Post{ID: 43}, Status: downloader.StatusFailed, Err: errors.New("reset")})
	p.Page(scraper.PageReport{
		Page:       5,
		TotalPages: 10,
		Filtered:   2,
		Outcome: downloader.PageOutcome{
			Downloaded: 1,
			Skipped:    3,
			Failed:     1,
			Incomplete: 2,
			Stalled:    true,
			Bytes:      2048,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Starting page: 3")
	assert.Contains(t, out, "Total pages: 10")
	assert.Contains(t, out, "42.png 2.00 KB")
	assert.Contains(t, out, "43 reset")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := lines[len(lines)-1]
	assert.Contains(t, last, "Page 5/10 [━━━━━━━━━━──────────]")
	assert.Contains(t, last, "1 new")
	assert.Contains(t, last, "3 existing")
	assert.Contains(t, last, "2 filtered")
	assert.Contains(t, last, "1 failed")
	assert.Contains(t, last, "stalled, 2 abandoned")
}

func TestPageProgressUnknownTotal(t *testing.T) {
	buf := captureOutput(t)

	p := NewPageProgress("", false)
	p.Start(1, 0)
	p.Page(scraper.PageReport{Page: 1})

	out := buf.String()
	assert.Contains(t, out, "(all posts)")
	assert.NotContains(t, out, "Total pages")
	assert.Contains(t, out, "Page 1 ")
	assert.NotContains(t, out, "[")
}

func TestPrintSummary(t *testing.T) {
	buf := captureOutput(t)

	PrintSummary(&scraper.Summary{
		Images:     2,
		Bytes:      3000,
		Duration:   4 * time.Second,
		LastPage:   7,
		StopReason: scraper.StopNoMorePosts,
	})
	out := buf.String()
	assert.Contains(t, out, "Finished: no-more-posts")
	assert.Contains(t, out, "Images downloaded: 2")
	assert.Contains(t, out, "Size: 2.93 KB")
	assert.Contains(t, out, "Last completed page: 7")

	buf.Reset()
	PrintSummary(&scraper.Summary{StopReason: scraper.StopFetchFailed, ListingErr: errors.New("503")})
	assert.Contains(t, buf.String(), "Stopped: fetch-failed: 503")
}

type recordingSender struct {
	titles []string
	err    error
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func TestNotifier(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifierWithSender(sender)
	require.True(t, n.Enabled())

	require.NoError(t, n.SendSuccess("konadl", "done"))
	require.NoError(t, n.SendError("konadl", "failed"))
	assert.Equal(t, []string{"konadl", "⚠ konadl"}, sender.titles)

	sender.err = errors.New("no daemon")
	assert.Error(t, n.SendSuccess("x", "y"))
}

func TestNotifierDisabled(t *testing.T) {
	n := NewNotifier(false)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.SendSuccess("x", "y"))

	var none *Notifier
	assert.False(t, none.Enabled())
}
