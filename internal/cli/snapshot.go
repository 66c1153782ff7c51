package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/invsync/internal/remote"
)

// RemoteOptions are the flags shared by commands that talk to an authority.
type RemoteOptions struct {
	Server string
	User   string
	Rules  string
}

func (o *RemoteOptions) register(cmd *cobra.Command, root *RootOptions) {
	cmd.Flags().StringVar(&o.Server, "server", root.Config.ServerURL, "authority base URL")
	cmd.Flags().StringVar(&o.User, "user", root.Config.User, "inventory owner")
	cmd.Flags().StringVar(&o.Rules, "rules", root.Config.Rules, "economy rules CUE file")
}

func (o *RemoteOptions) client() (*remote.Client, error) {
	if o.User == "" {
		return nil, NewExitError(ExitCommandError, "--user is required")
	}
	r, err := loadRules(o.Rules)
	if err != nil {
		return nil, err
	}
	return remote.NewClient(o.Server, o.User, r, nil), nil
}

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	RemoteOptions
}

// SnapshotResult is the JSON payload of the snapshot command.
type SnapshotResult struct {
	User      string          `json:"user"`
	SyncedAt  int64           `json:"synced_at"`
	Items     int             `json:"items"`
	Inventory json.RawMessage `json:"inventory"`
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the authoritative inventory",
		Long: `Fetch the authoritative inventory through the resync endpoint.

Example:
  invsync snapshot --server http://127.0.0.1:8080 --user alice
  invsync snapshot --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, cmd)
		},
	}
	opts.register(cmd, rootOpts)

	return cmd
}

func runSnapshot(opts *SnapshotOptions, cmd *cobra.Command) error {
	client, err := opts.client()
	if err != nil {
		return err
	}

	snap, err := client.FetchSnapshot(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch snapshot", err)
	}
	data, err := snap.Inventory.Encode()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode inventory", err)
	}

	return opts.formatter(cmd).Report("", SnapshotResult{
		User:      opts.User,
		SyncedAt:  snap.SyncedAt,
		Items:     snap.Inventory.Len(),
		Inventory: data,
	},
		fmt.Sprintf("%s: %d items at synced_at %d", opts.User, snap.Inventory.Len(), snap.SyncedAt),
		string(data),
	)
}
