package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"konadl/pkg/config"
	"konadl/pkg/logger"
	"konadl/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	logFile       string
	noColor       bool
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "konadl",
	Short: "Bulk image downloader for Konachan and other Moebooru boards",
	Long: `konadl walks the post listing of a Moebooru image board page by page and
downloads every image it finds into a local directory.

Features:
  - Safe-only filtering on konachan.net, everything on konachan.com
  - Concurrent downloads with a per-page deadline
  - Resume from the last completed page of every tag query
  - Cumulative download statistics across sessions
  - Automatic retry with exponential backoff
  - Optional Prometheus metrics and desktop notifications

Running konadl without a subcommand is the same as 'konadl download'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.SetQuiet(true)
		}
		if noColor {
			ui.SetColor(false)
		}
	},
	RunE: runDownload,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.konadl.yaml or ~/.config/konadl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", false, "send a desktop notification when a run ends")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print a line for every file")

	rootCmd.SetVersionTemplate(`konadl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig resolves the configuration for cmd and initializes the global
// logger from it. Only flags the user actually set override lower sources.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return nil, err
	}

	if noColor {
		cfg.Logging.NoColor = true
	}
	if cmd.Flags().Changed("notifications") {
		cfg.Notifications.Enabled = notifications
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// collectFlags builds the override map consumed by config.Load
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()

	for _, name := range []string{"tags", "dir", "proxy", "account", "metrics-addr", "state-backend", "log-level", "log-file"} {
		if fs.Changed(name) {
			if v, err := fs.GetString(name); err == nil {
				flags[name] = v
			}
		}
	}
	for _, name := range []string{"start", "end", "workers", "limit", "stop-after-skipped"} {
		if fs.Changed(name) {
			if v, err := fs.GetInt(name); err == nil {
				flags[name] = v
			}
		}
	}
	for _, name := range []string{"unsafe", "smart"} {
		if fs.Changed(name) {
			if v, err := fs.GetBool(name); err == nil {
				flags[name] = v
			}
		}
	}
	if fs.Changed("timeout") {
		if v, err := fs.GetDuration("timeout"); err == nil {
			flags["timeout"] = v
		}
	}
	return flags
}
