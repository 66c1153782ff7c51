package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/invsync/internal/authority"
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/rules"
	"github.com/roach88/invsync/internal/store"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Listen   string
	Rules    string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authoritative inventory service",
		Long: `Run the authoritative inventory service over HTTP.

The service owns one inventory per user in a SQLite database, applies each
command it receives against the caller's synced_at, and serves full
snapshots for resync.

Example:
  invsync serve --db ./invsync.db --listen 127.0.0.1:8080
  invsync serve --rules ./economy.cue --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.Config.DB, "path to SQLite database")
	cmd.Flags().StringVar(&opts.Listen, "listen", rootOpts.Config.Listen, "address to listen on")
	cmd.Flags().StringVar(&opts.Rules, "rules", rootOpts.Config.Rules, "economy rules CUE file (defaults apply when empty)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	svc, closeStore, err := openService(opts.Database, opts.Rules)
	if err != nil {
		return err
	}
	defer closeStore()

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler:           authority.NewHandler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	slog.Info("authority listening", "addr", ln.Addr().String(), "db", opts.Database)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	<-serveErr
	slog.Info("authority stopped gracefully")
	return nil
}

// openService opens the store at dbPath and builds the authority over it.
func openService(dbPath, rulesPath string) (*authority.Service, func(), error) {
	if dbPath == "" {
		return nil, nil, NewExitError(ExitCommandError, "--db is required")
	}
	r, err := loadRules(rulesPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}
	return authority.NewService(st, r), closeStore, nil
}

func loadRules(path string) (inventory.Rules, error) {
	if path == "" {
		return inventory.DefaultRules(), nil
	}
	r, err := rules.Load(path)
	if err != nil {
		return inventory.Rules{}, WrapExitError(ExitCommandError, "invalid rules", err)
	}
	return r, nil
}
