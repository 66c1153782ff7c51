package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	User     string
}

// LogEntry is one accepted command as printed by the log command.
type LogEntry struct {
	Seq      int64  `json:"seq"`
	ID       string `json:"id"`
	Action   string `json:"action"`
	Args     string `json:"args"`
	SyncedAt int64  `json:"synced_at"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List the commands the authority accepted",
		Long: `List the commands the authority accepted for a user, in commit order.

Example:
  invsync log --db ./invsync.db --user alice
  invsync log --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.Config.DB, "path to SQLite database")
	cmd.Flags().StringVar(&opts.User, "user", rootOpts.Config.User, "inventory owner")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	svc, closeStore, err := openService(opts.Database, "")
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := svc.Log(cmd.Context(), opts.User)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read command log", err)
	}

	entries := make([]LogEntry, 0, len(records))
	lines := make([]string, 0, len(records))
	for _, r := range records {
		entries = append(entries, LogEntry{
			Seq:      r.Seq,
			ID:       r.ID,
			Action:   r.Action,
			Args:     r.Args,
			SyncedAt: r.SyncedAt,
		})
		lines = append(lines, fmt.Sprintf("%4d  %-24s %s %s", r.SyncedAt, r.Action, r.ID, r.Args))
	}
	if len(lines) == 0 {
		lines = append(lines, "No commands.")
	}
	return opts.formatter(cmd).Report("", entries, lines...)
}
