// Package x11 binds the harness to a real X server through
// github.com/jezek/xgb: XTEST key injection and ICCCM selection ownership.
//
// Every driver opens its own Conn. Connections are never shared between the
// injector and a selection owner, so each one has a single consumer for its
// event queue.
package x11

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"go.klb.dev/tkharness/internal/inject"
)

// Conn is one connection to an X display.
type Conn struct {
	X       *xgb.Conn
	Setup   *xproto.SetupInfo
	Screen  *xproto.ScreenInfo
	Display string

	mu    sync.Mutex
	atoms map[string]xproto.Atom
	names map[xproto.Atom]string
}

// Dial connects to display. An empty display means $DISPLAY.
func Dial(display string) (*Conn, error) {
	x, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("x11: connect %q: %w", display, err)
	}
	setup := xproto.Setup(x)
	return &Conn{
		X:       x,
		Setup:   setup,
		Screen:  setup.DefaultScreen(x),
		Display: display,
		atoms:   make(map[string]xproto.Atom),
		names:   make(map[xproto.Atom]string),
	}, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	c.X.Close()
	return nil
}

// Atom interns name, caching the result.
func (c *Conn) Atom(name string) (xproto.Atom, error) {
	c.mu.Lock()
	a, ok := c.atoms[name]
	c.mu.Unlock()
	if ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(c.X, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("x11: intern %q: %w", name, err)
	}
	c.remember(name, reply.Atom)
	return reply.Atom, nil
}

// AtomName returns the name of a, caching the result.
func (c *Conn) AtomName(a xproto.Atom) (string, error) {
	c.mu.Lock()
	name, ok := c.names[a]
	c.mu.Unlock()
	if ok {
		return name, nil
	}
	reply, err := xproto.GetAtomName(c.X, a).Reply()
	if err != nil {
		return "", fmt.Errorf("x11: atom name %d: %w", a, err)
	}
	c.remember(reply.Name, a)
	return reply.Name, nil
}

func (c *Conn) remember(name string, a xproto.Atom) {
	c.mu.Lock()
	c.atoms[name] = a
	c.names[a] = name
	c.mu.Unlock()
}

// Sync is a round trip with the server: when it returns, every request sent
// before it has been processed and every error those requests caused has been
// queued on the connection's event channel.
func (c *Conn) Sync() error {
	_, err := xproto.GetInputFocus(c.X).Reply()
	return err
}

// maxPropertyBytes is the largest 8-bit property payload a single
// ChangeProperty request can carry without BIG-REQUESTS.
func (c *Conn) maxPropertyBytes() int {
	const changePropertyHeader = 24
	return int(c.Setup.MaximumRequestLength)*4 - changePropertyHeader
}

// protocolError converts an xgb error into the transport-neutral record.
func protocolError(e xgb.Error) inject.ProtocolError {
	detail := e.Error()
	name, _, _ := strings.Cut(detail, " ")
	return inject.ProtocolError{
		Name:     name,
		Sequence: e.SequenceId(),
		BadValue: e.BadId(),
		Detail:   detail,
	}
}
