package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/inject"
	"go.klb.dev/tkharness/internal/selection"
	"go.klb.dev/tkharness/internal/virtual"
	"go.klb.dev/tkharness/internal/x11"
)

const (
	backendX11     = "x11"
	backendVirtual = "virtual"
)

// backend is one display a scenario drives.
type backend struct {
	name    string
	display string
	board   *selection.Board
	binding harness.Binding
	dial    inject.Dialer

	serve func(ctx context.Context) error
	close func()
}

// openBackend connects the display selected by the backend and display keys.
// Selection ownership needs a live connection; key injection dials its own
// connection per target, so fake-input passes withSelections=false.
func openBackend(v *viper.Viper, withSelections bool) (*backend, error) {
	name, display := v.GetString("backend"), v.GetString("display")
	switch name {
	case backendVirtual:
		d := virtual.New(display)
		slog.Debug("virtual display ready", "display", display)
		return &backend{
			name:    name,
			display: display,
			board:   d.Board(),
			dial:    d.Dialer(),
			close:   func() { _ = d.Close() },
		}, nil

	case backendX11:
		b := &backend{
			name:    name,
			display: display,
			board:   selection.NewBoard(),
			dial:    x11.DialKeyboard,
			close:   func() {},
		}
		if !withSelections {
			return b, nil
		}
		conn, err := x11.Dial(display)
		if err != nil {
			return nil, err
		}
		owner, err := x11.NewOwner(conn, b.board)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		b.binding = owner
		b.serve = owner.Serve
		b.close = owner.Close
		slog.Debug("x11 display connected", "display", display, "screen_root", fmt.Sprintf("0x%x", conn.Screen.Root))
		return b, nil
	}
	return nil, fmt.Errorf("unknown backend %q (want %s or %s)", name, backendX11, backendVirtual)
}

// harnessOptions returns the options that bind a harness to b.
func (b *backend) harnessOptions() []harness.Option {
	opts := []harness.Option{harness.WithDisplay(b.name, b.display)}
	if b.binding != nil {
		opts = append(opts, harness.WithBinding(b.binding))
	}
	return opts
}
