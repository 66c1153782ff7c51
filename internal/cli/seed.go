package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/invsync/internal/inventory"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
	User     string
	Rules    string
}

// SeedResult is the JSON payload of a successful seed.
type SeedResult struct {
	User     string `json:"user"`
	Items    int    `json:"items"`
	SyncedAt int64  `json:"synced_at"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <inventory.json>",
		Short: "Replace a user's authoritative inventory",
		Long: `Replace a user's authoritative inventory with the contents of a file.

The file holds an encoded inventory ({"items": [...], "next_uid": N}) and is
validated against the economy rules. Seeding advances synced_at, so every
replica built on the previous version will resync on its next command.

Example:
  invsync seed --db ./invsync.db --user alice ./alice.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.Config.DB, "path to SQLite database")
	cmd.Flags().StringVar(&opts.User, "user", rootOpts.Config.User, "inventory owner")
	cmd.Flags().StringVar(&opts.Rules, "rules", rootOpts.Config.Rules, "economy rules CUE file")

	return cmd
}

func runSeed(opts *SeedOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read inventory", err)
	}

	svc, closeStore, err := openService(opts.Database, opts.Rules)
	if err != nil {
		return err
	}
	defer closeStore()

	inv, err := inventory.Decode(data, svc.Rules())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid inventory", err)
	}
	out.VerboseLog("decoded %d items from %s", inv.Len(), path)

	syncedAt, err := svc.Seed(cmd.Context(), opts.User, inv)
	if err != nil {
		return WrapExitError(ExitFailure, "seed failed", err)
	}

	return out.Report("", SeedResult{User: opts.User, Items: inv.Len(), SyncedAt: syncedAt},
		fmt.Sprintf("Seeded %d items for %s (synced_at %d)", inv.Len(), opts.User, syncedAt))
}
