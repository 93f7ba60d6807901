package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"konadl/pkg/logger"
	"konadl/pkg/ui"
)

var recentSessions int

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cumulative download statistics",
	Long: `Show the totals accumulated over every finished session: images
downloaded, bytes written and time spent. With the sqlite state backend the
most recent sessions are listed as well.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("state-backend", "", "state backend to read (json, sqlite)")
	statsCmd.Flags().IntVarP(&recentSessions, "recent", "n", 10, "number of recent sessions to list (sqlite backend)")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	state, err := openState(&cfg.State, logger.GetLogger())
	if err != nil {
		return err
	}
	defer state.Close()

	record, err := state.stats.Load()
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}

	ui.PrintHighlight("Download statistics")
	ui.PrintInfo("Images downloaded", fmt.Sprint(record.TotalImagesDownloaded))
	ui.PrintInfo("Total size", ui.FormatSize(record.TotalDownloadedBytes))
	ui.PrintInfo("Total time", ui.FormatDuration(time.Duration(record.TotalTimeSeconds*float64(time.Second))))
	if record.TotalTimeSeconds > 0 {
		rate := int64(float64(record.TotalDownloadedBytes) / record.TotalTimeSeconds)
		ui.PrintInfo("Average speed", ui.FormatSize(rate)+"/s")
	}

	if state.db == nil || recentSessions <= 0 {
		return nil
	}

	sessions, err := state.db.RecentSessions(recentSessions)
	if err != nil {
		return fmt.Errorf("failed to read session history: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout())
	ui.PrintHighlight("Recent sessions")
	for _, s := range sessions {
		tags := s.Tags
		if tags == "" {
			tags = "(all posts)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s  %-24s pages %d-%d  %4d images  %10s  %s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			tags,
			s.FirstPage,
			s.LastPage,
			s.Images,
			ui.FormatSize(s.Bytes),
			s.StopReason,
		)
	}
	return nil
}
