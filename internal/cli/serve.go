package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/httpapi"
	"github.com/roach88/fca/internal/metrics"
	"github.com/roach88/fca/internal/report"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server and the
// final clear of the device.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr   string
	Report string
	Name   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the engine over HTTP",
		Long: `Connect to the configured device and serve the listener API over
HTTP. Every engine operation is counted in Prometheus metrics at
/metrics and, when a report database is configured, journaled to it.

On SIGINT or SIGTERM the server stops accepting requests and every
registered listener is cleared on the device.

Examples:
  fca serve --config fca.yaml
  fca serve --addr :9090 --report ./fca.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Report, "report", "", "report database path (overrides config)")
	cmd.Flags().StringVar(&opts.Name, "name", "serve", "run name recorded in the report")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	if opts.Report != "" {
		cfg.Report.Path = opts.Report
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()
	recorders := engine.Recorders{collector}

	var journal *engine.AsyncRecorder
	journalDone := make(chan struct{})
	if cfg.Report.Path != "" {
		slog.Info("opening report database", "path", cfg.Report.Path)
		st, err := report.Open(cfg.Report.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open report database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing report database", "error", closeErr)
			}
		}()
		run, err := st.StartRun(ctx, opts.Name, cfg.DispatchMode(), time.Now())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start report run", err)
		}
		slog.Info("report run started", "run_id", run.ID)

		journal = engine.NewAsyncRecorder(st.Journal(run))
		recorders = append(recorders, journal)
		go func() {
			defer close(journalDone)
			// Run outlives ctx so records from the final clear are written.
			if err := journal.Run(context.Background()); err != nil {
				slog.Error("journal stopped", "error", err)
			}
		}()
	} else {
		close(journalDone)
	}

	dev, err := connect(ctx, cfg, recorders)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dev.Close(); closeErr != nil {
			slog.Error("error closing device connection", "error", closeErr)
		}
	}()
	collector.TrackListeners(dev.engine.Len)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(dev.engine,
			httpapi.WithMetrics(collector),
			httpapi.WithModeSwitch(dev.modes),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTP.Addr, "mode", dev.modes.Mode())
		serveErr <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.HTTP.Addr)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = WrapExitError(ExitFailure, "http server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	status, err := dev.engine.ClearAllListeners(shutdownCtx)
	if err != nil {
		slog.Error("clearing listeners failed", "error", err)
	}
	slog.Info("listeners cleared", "status", status)

	if journal != nil {
		journal.Close()
	}
	<-journalDone

	slog.Info("server stopped gracefully")
	return runErr
}
