// Package grace runs a blocking service until it fails, a signal arrives
// or its context ends, then shuts it down within a deadline.
package grace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jate-dev/jate/kit/colorlog"
)

func defaultSignals() []os.Signal {
	if runtime.GOOS == "windows" {
		return []os.Signal{os.Interrupt}
	}
	return []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

type OrchestrateOptions struct {
	ShutdownTimeout time.Duration // Default: 10 seconds
	Signals         []os.Signal   // Default: SIGHUP, SIGINT, SIGTERM, SIGQUIT
	Logger          *slog.Logger  // Default: colorlog labelled "grace"

	// StartupCallback runs the service (e.g. server.ListenAndServe) and
	// should block until the service stops. Return an error instead of
	// exiting the process.
	StartupCallback func() error

	// ShutdownCallback stops the service. The context carries the
	// shutdown deadline.
	ShutdownCallback func(context.Context) error
}

// Orchestrate runs StartupCallback and calls ShutdownCallback once ctx is
// done, a signal is received or startup fails. It returns the startup
// error, if any, joined with the shutdown error. A StartupCallback that
// returns nil early leaves Orchestrate waiting for ctx or a signal.
func Orchestrate(ctx context.Context, options OrchestrateOptions) error {
	if options.Logger == nil {
		options.Logger = colorlog.New("grace")
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}
	if len(options.Signals) == 0 {
		options.Signals = defaultSignals()
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, options.Signals...)
	defer signal.Stop(sig)

	startupErr := make(chan error, 1)
	go func() {
		var err error
		if options.StartupCallback != nil {
			err = options.StartupCallback()
		}
		startupErr <- err
		if err != nil {
			options.Logger.Error("[startup] Error", "error", err)
			stop()
		}
	}()

	select {
	case s := <-sig:
		options.Logger.Info("[shutdown] Signal received, initiating graceful shutdown", "signal", s)
	case <-ctx.Done():
		options.Logger.Info("[shutdown] Initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), options.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if options.ShutdownCallback != nil {
		if shutdownErr = options.ShutdownCallback(shutdownCtx); shutdownErr != nil {
			options.Logger.Error("[shutdown] Cleanup error", "error", shutdownErr)
		}
	}

	select {
	case err := <-startupErr:
		return errors.Join(err, shutdownErr)
	case <-shutdownCtx.Done():
		options.Logger.Warn("[shutdown] Graceful shutdown timed out")
		return errors.Join(shutdownErr, shutdownCtx.Err())
	}
}
