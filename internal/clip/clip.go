// Package clip reads the system clipboard from the consumer side, the way a
// test runner checks what a toolkit under test published. It uses
// golang.design/x/clipboard, which only understands UTF-8 text and PNG
// images; anything else is reported as unsupported.
package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.design/x/clipboard"

	"go.klb.dev/tkharness/internal/payload"
)

// FormatPNG is the image format the system backend can read.
const FormatPNG payload.Format = "image/png"

// ErrUnavailable is returned by Wait on a backend with no display.
var ErrUnavailable = errors.New("clipboard unavailable")

// Backend is a read-only view of the system clipboard.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard contents in format f. It returns
	// nil, nil when the clipboard holds nothing in that format.
	Read(f payload.Format) ([]byte, error)

	// Wait returns the clipboard contents in format f, blocking until they
	// are non-empty or ctx is done.
	Wait(ctx context.Context, f payload.Format) ([]byte, error)

	// Close releases any resources held by the backend.
	Close()
}

// New returns the system clipboard backend, or a headless one when no display
// is reachable. clipboard.Init is called here rather than in init() so that
// commands which never touch the clipboard don't trigger it.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return headlessBackend{}
	}
	return &systemBackend{read: clipboard.Read, watch: clipboard.Watch}
}

type systemBackend struct {
	read  func(clipboard.Format) []byte
	watch func(context.Context, clipboard.Format) <-chan []byte
}

func (b *systemBackend) Name() string { return "system clipboard" }

func (b *systemBackend) Read(f payload.Format) ([]byte, error) {
	cf, err := clipboardFormat(f)
	if err != nil {
		return nil, err
	}
	return b.read(cf), nil
}

func (b *systemBackend) Wait(ctx context.Context, f payload.Format) ([]byte, error) {
	cf, err := clipboardFormat(f)
	if err != nil {
		return nil, err
	}
	// Subscribe before the first read so a change in between is not lost.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes := b.watch(ctx, cf)
	if data := b.read(cf); len(data) > 0 {
		return data, nil
	}
	slog.Debug("waiting for clipboard content", "format", f.String())
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case data, ok := <-changes:
			if !ok {
				return nil, ctx.Err()
			}
			if len(data) > 0 {
				return data, nil
			}
		}
	}
}

func (b *systemBackend) Close() {}

// clipboardFormat maps a payload format onto what the library can read.
// Any text/plain variant is read as text; the library always decodes UTF-8.
func clipboardFormat(f payload.Format) (clipboard.Format, error) {
	switch f.MediaType() {
	case "text/plain":
		return clipboard.FmtText, nil
	case string(FormatPNG):
		return clipboard.FmtImage, nil
	}
	return 0, fmt.Errorf("%w: %s (readable: text/plain, image/png)", payload.ErrUnsupportedFormat, f)
}
