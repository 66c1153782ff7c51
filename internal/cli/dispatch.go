package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/invsync/internal/command"
	"github.com/roach88/invsync/internal/engine"
	"github.com/roach88/invsync/internal/ir"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	RemoteOptions
	Args    string
	Timeout time.Duration
}

// DispatchResult is the JSON payload of the dispatch command.
type DispatchResult struct {
	Action   string   `json:"action"`
	State    string   `json:"state"`
	SyncedAt int64    `json:"synced_at"`
	Pending  int      `json:"pending"`
	Items    int      `json:"items"`
	Events   []string `json:"events"`
	Error    string   `json:"error,omitempty"`
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <action>",
		Short: "Apply one command through a sync engine",
		Long: `Apply one command through a sync engine.

A replica is fetched from the authority, the command is applied to it
optimistically, and the engine transmits it. The command finishes once the
engine is idle again or a recovery has failed. A rejected command leaves the
replica resynced to the authority and exits with status 1.

Actions: AddItem, RemoveItem, ApplyItemSticker, ScrapeItemSticker,
RenameItem, SwapItemsStatTrak, DepositToStorageUnit, ...

Example:
  invsync dispatch RenameItem --args '{"tool_uid":3,"target_uid":1,"name_tag":"Lucky"}'
  invsync dispatch RemoveItem --args '{"uid":2}' --user alice --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], cmd)
		},
	}

	opts.register(cmd, rootOpts)
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "JSON arguments for the action")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "maximum time to wait for the engine to settle")

	return cmd
}

func runDispatch(opts *DispatchOptions, action string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	c, err := parseCommand(action, opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid command", err)
	}
	client, err := opts.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	snap, err := client.FetchSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch snapshot", err)
	}
	out.VerboseLog("replica: %d items at synced_at %d", snap.Inventory.Len(), snap.SyncedAt)

	eng := engine.New(snap, client, client, opts.engineOptions()...)

	var (
		mu      sync.Mutex
		events  []string
		syncErr error
	)
	if _, err := eng.On(engine.EventAll, func(ev engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, string(ev.Kind))
		if ev.Kind == engine.EventSyncError && syncErr == nil {
			syncErr = ev.Err
		}
	}); err != nil {
		return WrapExitError(ExitFailure, "subscribe", err)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()

	dispatchErr := eng.Dispatch(c)
	var status engine.Status
	var waitErr error
	if dispatchErr == nil {
		status, waitErr = eng.WaitSettled(ctx)
	} else {
		status = eng.Status()
	}

	stopRun()
	<-done
	// Stop flushes queued events to the handler above.
	eng.Stop()

	mu.Lock()
	defer mu.Unlock()

	result := DispatchResult{
		Action:   action,
		State:    status.State.String(),
		SyncedAt: status.SyncedAt,
		Pending:  status.Pending,
		Items:    eng.Replica().Len(),
		Events:   append([]string{}, events...),
	}

	failure := dispatchErr
	if failure == nil && status.State == engine.StateRecovering {
		failure = status.LastErr
	}
	if failure == nil {
		failure = syncErr
	}
	if failure == nil && waitErr != nil {
		failure = waitErr
	}

	if failure != nil {
		result.Error = failure.Error()
		code := CodeSync
		if engine.IsPreconditionError(failure) {
			code = CodeUsage
		}
		if out.Format == "json" {
			if err := out.Error(code, failure.Error(), result); err != nil {
				return err
			}
		}
		return WrapExitError(ExitFailure, dispatchFailure(failure), failure)
	}

	return out.Report("", result,
		fmt.Sprintf("%s applied: %s at synced_at %d, %d items", action, result.State, result.SyncedAt, result.Items))
}

// parseCommand builds a command from an action name and its JSON args.
func parseCommand(action, args string) (command.Command, error) {
	v, err := ir.UnmarshalValue([]byte(args))
	if err != nil {
		return nil, fmt.Errorf("--args: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, errors.New("--args must be a JSON object")
	}
	c, err := command.Decode(command.Action(action), obj)
	if errors.Is(err, command.ErrUnknownAction) {
		return nil, fmt.Errorf("%w (known actions: %v)", err, command.Actions())
	}
	return c, err
}

func dispatchFailure(err error) string {
	switch {
	case engine.IsPreconditionError(err):
		return "command does not apply to the replica"
	case engine.IsRejected(err):
		return "authority rejected the command"
	case engine.IsResyncError(err):
		return "resync failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the engine"
	default:
		return "sync failed"
	}
}

// engineOptions returns the configured engine tuning, or nothing when the
// configuration was never loaded.
func (o *RootOptions) engineOptions() []engine.EngineOption {
	if o.Config.Validate() != nil {
		return nil
	}
	return o.Config.EngineOptions()
}
