package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// Ready, when set, receives the bound address once the listener is up.
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept sessions from peers",
		Long: `Serve this node's project service to registered peers over websockets.

Peers authenticate with a short-lived token signed by their key; events they
deliver are appended to the local copy of the project log after the usual
leader and seq_no checks. The session endpoint is the path of --route
(/sessions when no route is set).

Example:
  syncbridge serve --config ./alpha.yaml
  syncbridge serve --db ./alpha.db --key ./alpha.key --listen :8080 \
    --route ws://alpha:8080/sessions`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address to listen on (defaults to the config's listen)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	listen := opts.Listen
	if listen == "" {
		listen = opts.config().Listen
	}
	path := "/sessions"
	if opts.Route != "" {
		u, err := url.Parse(opts.Route)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --route", err)
		}
		if u.Path != "" {
			path = u.Path
		}
	}

	n, err := openNode(opts.RootOptions)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "open node", err)
	}
	defer n.Close()

	mux := http.NewServeMux()
	mux.Handle(path, &transport.Server{
		Self:    n.self,
		Peers:   n.store,
		Handler: n.service,
	})

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "listen", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	slog.Info("node serving", "node", n.self.String(), "addr", addr, "path", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s%s\n", n.self, addr, path)
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	select {
	case err := <-errc:
		return f.Fail(ExitFailure, ErrCodeGeneric, "server stopped", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("shutdown failed", "error", err)
	}
	slog.Info("node stopped gracefully")
	return nil
}
