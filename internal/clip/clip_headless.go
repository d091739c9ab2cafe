package clip

import (
	"context"

	"go.klb.dev/tkharness/internal/payload"
)

// headlessBackend is used when no display server is reachable. Reads are
// always empty and Wait fails straight away.
type headlessBackend struct{}

func (headlessBackend) Name() string { return "headless (no-op)" }

func (headlessBackend) Read(f payload.Format) ([]byte, error) {
	if _, err := clipboardFormat(f); err != nil {
		return nil, err
	}
	return nil, nil
}

func (headlessBackend) Wait(_ context.Context, f payload.Format) ([]byte, error) {
	if _, err := clipboardFormat(f); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}

func (headlessBackend) Close() {}
