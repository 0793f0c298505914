// Command lcastub serves the LCA application's IPC protocol from an
// in-memory dataset so lcarun can be tried without the real application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/lcarun/internal/adapters/http/stub"
	"github.com/okian/lcarun/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

type options struct {
	addr       string
	dataset    string
	readyAfter int
	noDispose  bool
	logLevel   string
	logFormat  string
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newCommand(stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "lcastub",
		Short:        "Serve the LCA IPC protocol from an in-memory dataset",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWith(stderr, opts.logFormat); err != nil {
				return err
			}
			if err := logger.SetLevelString(opts.logLevel); err != nil {
				return err
			}
			ln, err := net.Listen("tcp", opts.addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", opts.addr, err)
			}
			return serve(cmd.Context(), ln, opts, logger.Named("lcastub"))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8080", "listen address")
	f.StringVar(&opts.dataset, "dataset", "", "YAML dataset file (default: built-in cable dataset)")
	f.IntVar(&opts.readyAfter, "ready-after", 2, "state polls before a calculation reports ready")
	f.BoolVar(&opts.noDispose, "no-dispose", false, "answer result/dispose as an unknown method")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", logger.FormatText, "log format: text or json")
	return cmd
}

// serve runs the stub on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, opts *options, log logger.Logger) error {
	serverOpts := []stub.Option{
		stub.WithReadyAfter(opts.readyAfter),
		stub.WithDispose(!opts.noDispose),
		stub.WithLogger(log),
	}
	if opts.dataset != "" {
		ds, err := stub.LoadDataset(opts.dataset)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, stub.WithDataset(ds))
	}

	srv := &http.Server{
		Handler:           stub.New(serverOpts...).Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting stub server", logger.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("stub server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}

	log.Info(ctx, "server stopped")
	return nil
}
