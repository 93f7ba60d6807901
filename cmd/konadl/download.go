package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"konadl/pkg/auth"
	"konadl/pkg/booru"
	"konadl/pkg/config"
	errs "konadl/pkg/errors"
	"konadl/pkg/logger"
	"konadl/pkg/metrics"
	"konadl/pkg/ratelimit"
	"konadl/pkg/retry"
	"konadl/pkg/scraper"
	"konadl/pkg/statedb"
	"konadl/pkg/storage"
	"konadl/pkg/ui"
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download every image matching a tag query",
	Long: `Download every image matching a tag query, one listing page at a time.

Each completed page is recorded, so running the same query again resumes
after the last page that finished. Files that already exist on disk are
skipped, which makes repeated runs cheap.

Without --unsafe only posts rated safe are kept and konachan.net is used.
With --unsafe every rating is kept and konachan.com is used.`,
	Example: `  # Download all safe wallpapers tagged landscape
  konadl download --tags landscape

  # Everything, 10 workers, into ./walls
  konadl --tags "sky clouds" --unsafe --workers 10 --dir ./walls

  # Pick up new posts only: start at page 1, stop after 5 pages with nothing new
  konadl --tags landscape --smart

  # Pages 20 to 40 through a proxy
  konadl --tags landscape --start 20 --end 40 --proxy http://127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	// Also on the root command so that "konadl --tags x" works
	addDownloadFlags(downloadCmd)
	addDownloadFlags(rootCmd)
}

func addDownloadFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("tags", "t", "", "tag query, space separated (default: all posts)")
	fs.Int("start", 0, "first page to fetch (default: resume after the last completed page)")
	fs.Int("end", 0, "last page to fetch, inclusive (0 means no limit)")
	fs.IntP("workers", "w", 5, "concurrent downloads per page")
	fs.StringP("dir", "d", "downloads", "output directory")
	fs.Int("limit", 100, "posts per listing page")
	fs.Duration("timeout", 10*time.Second, "per-request timeout")
	fs.Bool("unsafe", false, "keep every rating and use konachan.com")
	fs.String("proxy", "", "HTTP proxy URL")
	fs.Int("stop-after-skipped", 0, "stop after this many consecutive pages with no new downloads (0 disables)")
	fs.Bool("smart", false, "start at page 1 and stop after 5 pages with no new downloads")
	fs.StringP("account", "a", "", "use a specific stored account")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.String("state-backend", "", "where progress and statistics are kept (json, sqlite)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.GetLogger().WithField("component", "cli")
	log.WithField("version", version).Debug("konadl starting")

	ui.PrintLogo()

	client := newBooruClient(cfg, resolveAccount(cfg.Booru.Account, log), log)
	ui.PrintInfo("Board", client.BaseURL())
	if cfg.Booru.Proxy != "" {
		ui.PrintInfo("Proxy", cfg.Booru.Proxy)
	}

	store, err := storage.NewManager(cfg.Download.Directory)
	if err != nil {
		return err
	}
	ui.PrintInfo("Output", store.OutputDir())

	state, err := openState(&cfg.State, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := state.Close(); err != nil {
			log.WithError(err).Warn("Failed to close state backend")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.ListenAddr != "" {
		ui.PrintInfo("Metrics", "http://"+cfg.Metrics.ListenAddr+"/metrics")
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				log.WithError(err).Warn("Metrics server stopped")
			}
		}()
	}

	progress := ui.NewPageProgress(cfg.Booru.Tags, verbose)
	summary, runErr := scraper.Run(ctx, scraper.Options{
		Tags:             cfg.Booru.Tags,
		StartPage:        cfg.Download.StartPage,
		EndPage:          cfg.Download.EndPage,
		Limit:            cfg.Booru.Limit,
		Unsafe:           cfg.Booru.Unsafe,
		StopAfterSkipped: cfg.Download.StopAfterSkipped,
		Workers:          cfg.Download.Workers,
		Timeout:          cfg.Download.Timeout,
		ItemBudget:       client.ContentBudget(),
		BatchTimeout:     cfg.Download.BatchTimeout,
		PageDelay:        cfg.Download.PageDelay,
		Fetcher:          client,
		Storage:          store,
		Progress:         state.progress,
		Stats:            state.stats,
		Logger:           logger.GetLogger(),
		OnStart:          progress.Start,
		OnPage:           progress.Page,
		OnResult:         progress.Result,
	})
	if summary == nil {
		return runErr
	}

	ui.PrintSummary(summary)
	if summary.Totals.TotalImagesDownloaded > 0 {
		ui.PrintInfo("All sessions", fmt.Sprintf("%d images, %s",
			summary.Totals.TotalImagesDownloaded, ui.FormatSize(summary.Totals.TotalDownloadedBytes)))
	}
	if errs.IsNameResolution(summary.ListingErr) && cfg.Booru.Proxy == "" {
		ui.PrintWarning(fmt.Sprintf("Tip: %s could not be resolved. If the board is blocked on your network, retry with --proxy.", client.BaseURL()))
	}

	if state.db != nil {
		if err := state.db.RecordSession(sessionRecord(summary)); err != nil {
			log.WithError(err).Warn("Failed to record session history")
		}
	}

	notifyRunEnd(cfg, summary, runErr, log)
	return runErr
}

// resolveAccount looks up stored credentials. Browsing works without an
// account, so lookup failures only downgrade to anonymous access.
func resolveAccount(name string, log logger.Logger) *auth.Account {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("Credential manager unavailable")
		return nil
	}

	var account *auth.Account
	if name != "" {
		account, err = manager.Retrieve(name)
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("Account %q not found, continuing anonymously", name))
			log.WithError(err).WithField("account", name).Warn("Stored account not found")
			return nil
		}
	} else if account, err = manager.RetrieveDefault(); err != nil {
		return nil
	}

	ui.PrintInfo("Using account", account.Username)
	log.WithField("account", account.Username).Info("Using stored credentials")
	return account
}

func newBooruClient(cfg *config.Config, account *auth.Account, log logger.Logger) *booru.Client {
	limiter := ratelimit.NewHostLimiter(cfg.RateLimit)
	limiter.OnDelay = metrics.ObserveRateLimitDelay

	opts := booru.Options{
		BaseURL:   cfg.Booru.BaseURL(),
		UserAgent: cfg.Booru.UserAgent,
		Proxy:     cfg.Booru.Proxy,
		Timeout:   cfg.Download.Timeout,
		Listing:   retry.FromPolicy(cfg.Retry.Listing, log),
		Content:   retry.FromPolicy(cfg.Retry.Content, log),
		Limiter:   limiter,
		Logger:    logger.GetLogger(),
	}
	if account != nil {
		opts.Credentials = account.Credentials()
	}
	return booru.NewClient(opts)
}

func sessionRecord(s *scraper.Summary) *statedb.Session {
	return &statedb.Session{
		ID:         s.SessionID,
		Tags:       s.Tags,
		FirstPage:  s.FirstPage,
		LastPage:   s.LastPage,
		Images:     s.Images,
		Bytes:      s.Bytes,
		Seconds:    s.Duration.Seconds(),
		StopReason: string(s.StopReason),
		StartedAt:  s.StartedAt,
	}
}

func notifyRunEnd(cfg *config.Config, s *scraper.Summary, runErr error, log logger.Logger) {
	notifier := ui.NewNotifier(cfg.Notifications.Enabled)
	if !notifier.Enabled() {
		return
	}

	var err error
	switch {
	case runErr == nil && s.StopReason.Success() && cfg.Notifications.OnComplete:
		err = notifier.SendSuccess("konadl", fmt.Sprintf("%d images downloaded (%s)", s.Images, ui.FormatSize(s.Bytes)))
	case runErr != nil && cfg.Notifications.OnError:
		err = notifier.SendError("konadl", runErr.Error())
	case s.StopReason == scraper.StopFetchFailed && cfg.Notifications.OnError:
		err = notifier.SendError("konadl", fmt.Sprintf("Stopped at page %d: %v", s.LastPage+1, s.ListingErr))
	}
	if err != nil {
		log.WithError(err).Debug("Failed to send notification")
	}
}
