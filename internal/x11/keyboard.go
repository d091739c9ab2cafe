package x11

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"

	"go.klb.dev/tkharness/internal/inject"
)

// Keyboard is an inject.Transport that sends XTEST fake key events.
type Keyboard struct {
	conn *Conn

	mu   sync.Mutex
	sink *inject.Sink
}

// DialKeyboard connects to display and initialises the XTEST extension.
func DialKeyboard(display string) (inject.Transport, error) {
	c, err := Dial(display)
	if err != nil {
		return nil, err
	}
	if err := xtest.Init(c.X); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("x11: XTEST unavailable on %q: %w", display, err)
	}
	slog.Debug("x11 keyboard connected",
		"display", display,
		"min_keycode", c.Setup.MinKeycode,
		"max_keycode", c.Setup.MaxKeycode,
	)
	return &Keyboard{conn: c}, nil
}

// SetErrorSink implements inject.Transport.
func (k *Keyboard) SetErrorSink(s *inject.Sink) func() {
	k.mu.Lock()
	prev := k.sink
	k.sink = s
	k.mu.Unlock()
	return func() {
		k.mu.Lock()
		k.sink = prev
		k.mu.Unlock()
	}
}

// Dispatch sends an unchecked FakeInput request. Errors it causes arrive on
// the event queue, never here. Codes that do not fit the one-byte keycode
// field are rejected locally.
func (k *Keyboard) Dispatch(ev inject.Event) error {
	if ev.Code > 0xff {
		return fmt.Errorf("%w: %d does not fit an X keycode", inject.ErrInvalidKeyCode, ev.Code)
	}
	xtest.FakeInput(k.conn.X, keyOpcode(ev.Op), byte(ev.Code), 0, k.conn.Screen.Root, 0, 0, 0)
	return nil
}

// Sync performs the barrier round trip and then drains the event queue,
// delivering every error to the sink. Non-error events are discarded; this
// connection exists only to inject.
func (k *Keyboard) Sync() error {
	if err := k.conn.Sync(); err != nil {
		return fmt.Errorf("x11: sync: %w", err)
	}
	for {
		ev, xerr := k.conn.X.PollForEvent()
		if ev == nil && xerr == nil {
			return nil
		}
		if xerr != nil {
			k.deliver(protocolError(xerr))
		}
	}
}

func (k *Keyboard) deliver(pe inject.ProtocolError) {
	k.mu.Lock()
	s := k.sink
	k.mu.Unlock()
	if s == nil {
		slog.Warn("x11 error with no sink installed", "err", pe.Error())
		return
	}
	s.Deliver(pe)
}

// Close implements inject.Transport.
func (k *Keyboard) Close() error { return k.conn.Close() }

// keyOpcode maps an operation onto the core event code XTEST expects.
func keyOpcode(op inject.Operation) byte {
	if op == inject.KeyRelease {
		return xproto.KeyRelease
	}
	return xproto.KeyPress
}
