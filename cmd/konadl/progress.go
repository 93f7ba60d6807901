package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"konadl/pkg/logger"
	"konadl/pkg/ui"
)

var resetAll bool

// progressCmd represents the progress command
var progressCmd = &cobra.Command{
	Use:   "progress [tags]",
	Short: "List or reset resume points",
	Long: `List the last completed page of every tag query konadl has seen.

Use 'konadl progress reset <tags>' to forget one query so that the next run
starts from page 1 again. The empty query (all posts) is reset with "".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProgressList,
}

var progressResetCmd = &cobra.Command{
	Use:   "reset <tags>",
	Short: "Forget the resume point of a tag query",
	Args: func(cmd *cobra.Command, args []string) error {
		if resetAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runProgressReset,
}

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.AddCommand(progressResetCmd)
	progressCmd.PersistentFlags().String("state-backend", "", "state backend to use (json, sqlite)")
	progressResetCmd.Flags().BoolVar(&resetAll, "all", false, "forget every tag query")
}

func runProgressList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	state, err := openState(&cfg.State, logger.GetLogger())
	if err != nil {
		return err
	}
	defer state.Close()

	if len(args) == 1 {
		page, err := state.progress.Page(args[0])
		if err != nil {
			return err
		}
		ui.PrintInfo(displayTags(args[0]), fmt.Sprintf("page %d", page))
		return nil
	}

	progress, err := state.progress.Load()
	if err != nil {
		return err
	}
	keys, err := state.progress.Keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		ui.PrintInfo("Progress", "nothing recorded yet")
		return nil
	}

	ui.PrintHighlight(fmt.Sprintf("Resume points (%s)", state.location))
	for _, key := range keys {
		ui.PrintInfo(displayTags(key), fmt.Sprintf("page %d", progress[key]))
	}
	return nil
}

func runProgressReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	state, err := openState(&cfg.State, logger.GetLogger())
	if err != nil {
		return err
	}
	defer state.Close()

	keys := args
	if resetAll {
		if keys, err = state.progress.Keys(); err != nil {
			return err
		}
	}

	for _, key := range keys {
		if err := state.progress.Delete(key); err != nil {
			return fmt.Errorf("failed to reset %s: %w", displayTags(key), err)
		}
		ui.PrintSuccess(fmt.Sprintf("Reset %s", displayTags(key)))
	}
	return nil
}

func displayTags(tags string) string {
	if tags == "" {
		return "(all posts)"
	}
	return tags
}
