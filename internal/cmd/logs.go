package cmd

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/bundlr/internal/config"
	"github.com/Iron-Ham/bundlr/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View bundlr logs",
	Long: `View and filter bundlr.log, including rotated backups.

Examples:
  # Show the last 50 entries
  bundlr logs

  # Show everything for one platform
  bundlr logs -p android -n 0

  # Warnings and errors from the last hour
  bundlr logs --level warn --since 1h

  # Search messages
  bundlr logs --grep "exited|terminated"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail     int
	logsLevel    string
	logsSince    string
	logsPlatform string
	logsGrep     string
	logsFormat   string
	logsDir      string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVarP(&logsPlatform, "platform", "p", "", "Only entries for this platform")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter messages matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format (text/json)")
	logsCmd.Flags().StringVar(&logsDir, "dir", "", "Log directory (default: logging.dir)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := logsDir
	if dir == "" {
		cfg := config.Get()
		dir = cfg.Logging.ResolveDir()
	}

	filter := logging.LogFilter{Platform: logsPlatform}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}

	var grep *regexp.Regexp
	if logsGrep != "" {
		var err error
		if grep, err = regexp.Compile(logsGrep); err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	entries, err := logging.ReadLogs(dir)
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)
	if grep != nil {
		kept := entries[:0:0]
		for _, e := range entries {
			if grep.MatchString(e.Message) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if len(entries) == 0 && logsFormat != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching log entries found.")
		return nil
	}
	return logging.WriteLogs(cmd.OutOrStdout(), entries, logsFormat)
}
