// Package virtual is an in-process stand-in for a display server.
//
// Its keyboard behaves like an X server with the XTEST extension: key codes
// outside [MinKeyCode, MaxKeyCode] are rejected with a BadValue error that is
// queued, not returned, and only reaches the installed sink when Sync runs.
package virtual

import (
	"errors"
	"fmt"
	"sync"

	"go.klb.dev/tkharness/internal/inject"
	"go.klb.dev/tkharness/internal/selection"
)

// Default key code range of an X server.
const (
	MinKeyCode = 8
	MaxKeyCode = 255
)

var errClosed = errors.New("virtual display closed")

// Display is a virtual display: a selection board plus a keyboard.
type Display struct {
	name  string
	board *selection.Board

	mu       sync.Mutex
	seq      uint16
	pending  []inject.ProtocolError
	sink     *inject.Sink
	pressed  map[int]bool
	received []inject.Event
	closed   bool
	minCode  int
	maxCode  int
}

// Option configures a Display.
type Option func(*Display)

// WithKeyCodeRange overrides the accepted key code range.
func WithKeyCodeRange(lo, hi int) Option {
	return func(d *Display) { d.minCode, d.maxCode = lo, hi }
}

// New returns an empty display named name.
func New(name string, opts ...Option) *Display {
	d := &Display{
		name:    name,
		board:   selection.NewBoard(),
		pressed: make(map[int]bool),
		minCode: MinKeyCode,
		maxCode: MaxKeyCode,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name returns the display name.
func (d *Display) Name() string { return d.name }

// Board returns the display's selection board.
func (d *Display) Board() *selection.Board { return d.board }

// Dialer returns an inject.Dialer that always connects to d.
func (d *Display) Dialer() inject.Dialer {
	return func(string) (inject.Transport, error) { return d, nil }
}

// SetErrorSink implements inject.Transport.
func (d *Display) SetErrorSink(s *inject.Sink) func() {
	d.mu.Lock()
	prev := d.sink
	d.sink = s
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.sink = prev
		d.mu.Unlock()
	}
}

// Dispatch implements inject.Transport. Rejections are queued until Sync.
func (d *Display) Dispatch(ev inject.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	d.seq++
	if ev.Code < d.minCode || ev.Code > d.maxCode {
		d.pending = append(d.pending, inject.ProtocolError{
			Name:     "BadValue",
			Sequence: d.seq,
			BadValue: uint32(ev.Code),
			Detail:   fmt.Sprintf("BadValue {Sequence: %d, BadValue: %d, MinorOpcode: 2}", d.seq, ev.Code),
		})
		return nil
	}
	d.pressed[ev.Code] = ev.Op == inject.KeyPress
	d.received = append(d.received, ev)
	return nil
}

// Sync implements inject.Transport: it delivers every queued error to the
// current sink.
func (d *Display) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	pending := d.pending
	d.pending = nil
	for _, pe := range pending {
		if d.sink != nil {
			d.sink.Deliver(pe)
		}
	}
	return nil
}

// Close implements inject.Transport. The display itself stays usable for
// other connections; only the keyboard stops accepting events.
func (d *Display) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Pressed reports whether code is currently held down.
func (d *Display) Pressed(code int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pressed[code]
}

// Received returns the accepted events in arrival order.
func (d *Display) Received() []inject.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]inject.Event(nil), d.received...)
}

// Pending returns the number of queued, undelivered errors.
func (d *Display) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
