package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Iron-Ham/tosh/internal/config"
	"github.com/Iron-Ham/tosh/internal/logging"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the debug log",
	Long: `View and filter the debug log written while logging.enabled is set.

Examples:
  # Show the last 50 records
  tosh logs

  # Everything about one job, by the id shown by the jobs built-in
  tosh logs --job 01234567 -n 0

  # Warnings and errors from the last hour
  tosh logs --level warn --since 1h`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail    int
	logsLevel   string
	logsSince   string
	logsJob     string
	logsSession string
	logsPID     int
	logsGrep    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of records to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show records since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsJob, "job", "", "Job ID or its first 8 characters")
	logsCmd.Flags().StringVar(&logsSession, "session", "", "Shell session ID")
	logsCmd.Flags().IntVar(&logsPID, "pid", 0, "Process ID")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Show records whose message contains this text")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	filter := logging.Filter{
		Level:     logsLevel,
		SessionID: logsSession,
		JobID:     logsJob,
		PID:       logsPID,
		Contains:  logsGrep,
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}

	out := cmd.OutOrStdout()
	dir := cfg.Logging.LogDir()
	entries, err := logging.ReadLog(dir)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "No debug log in %s\n", dir)
		fmt.Fprintln(out, "Enable it with: tosh config set logging.enabled true")
		return nil
	}
	if err != nil {
		return err
	}

	entries = filter.Apply(entries)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(out, e.Format())
	}
	return nil
}
