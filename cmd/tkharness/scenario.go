package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/control"
	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/ipc"
)

// runScenario sets up one driver on the configured display, serves it on the
// control socket, prints "ready" and idles until SIGINT or SIGTERM. Ownership
// is released on the way out.
func runScenario(v *viper.Viper, name string, setup func(h *harness.Harness) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serveScenario(ctx, v, os.Stdout, name, setup)
}

// serveScenario is runScenario with the stop context and readiness output
// supplied by the caller.
func serveScenario(ctx context.Context, v *viper.Viper, out io.Writer, name string, setup func(h *harness.Harness) error) error {
	be, err := openBackend(v, true)
	if err != nil {
		return err
	}
	defer be.close()

	// The display connection outlives the harness so that releasing
	// ownership on exit still reaches the server.
	displayCtx, closeDisplay := context.WithCancel(context.Background())
	defer closeDisplay()

	h := harness.New(name, be.board, be.harnessOptions()...)
	defer h.Close()

	errCh := make(chan error, 2)
	if be.serve != nil {
		go func() { errCh <- be.serve(displayCtx) }()
	}

	if err := setup(h); err != nil {
		return err
	}

	srv, err := control.NewServer(control.NewHandler(h))
	if err != nil {
		return err
	}
	defer srv.Close()
	socket := v.GetString("socket")
	if ln, err := ipc.Listen(socket); err != nil {
		slog.Warn("control socket unavailable", "err", err)
	} else {
		go func() { errCh <- srv.Serve(ln) }()
	}

	slog.Info("scenario ready",
		"scenario", name,
		"version", Version,
		"backend", be.name,
		"display", be.display,
		"socket", socket,
	)
	fmt.Fprintln(out, "ready")
	if f, ok := out.(*os.File); ok {
		_ = f.Sync()
	}

	select {
	case <-ctx.Done():
		slog.Info("scenario stopping", "scenario", name)
		return nil
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}
}
