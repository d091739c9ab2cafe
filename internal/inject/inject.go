// Package inject sends single synthetic key events to a display and reports
// the protocol errors they cause.
//
// Display servers report request errors asynchronously, out of band from the
// request that caused them. Inject therefore runs a strict sequence: install
// an error Sink, dispatch the event, force a synchronisation barrier with the
// server, then drain the sink. Only errors drained after the barrier are
// reported, and all of them are reported.
package inject

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var (
	// ErrInvalidOperation is returned by ParseOperation.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidKeyCode is returned for negative key codes, or codes the
	// transport cannot encode at all.
	ErrInvalidKeyCode = errors.New("invalid key code")
)

// Operation is a key event type. Values match the X11 core event codes.
type Operation uint8

const (
	KeyPress   Operation = 2
	KeyRelease Operation = 3
)

func (o Operation) String() string {
	switch o {
	case KeyPress:
		return "KeyPress"
	case KeyRelease:
		return "KeyRelease"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

// ParseOperation accepts exactly "KeyPress" or "KeyRelease".
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "KeyPress":
		return KeyPress, nil
	case "KeyRelease":
		return KeyRelease, nil
	default:
		return 0, fmt.Errorf("%w %q: want KeyPress or KeyRelease", ErrInvalidOperation, s)
	}
}

// Event is one key event.
type Event struct {
	Op   Operation
	Code int
}

// Validate checks the parts of the event that do not depend on the target.
func (e Event) Validate() error {
	if e.Op != KeyPress && e.Op != KeyRelease {
		return fmt.Errorf("%w: %s", ErrInvalidOperation, e.Op)
	}
	if e.Code < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeyCode, e.Code)
	}
	return nil
}

func (e Event) String() string { return fmt.Sprintf("%s %d", e.Op, e.Code) }

// ProtocolError is one error record delivered by the display server.
type ProtocolError struct {
	// Name is the protocol error name, e.g. "BadValue".
	Name string
	// Sequence is the request sequence number the server attributes it to.
	Sequence uint16
	// BadValue is the offending resource id or value, if any.
	BadValue uint32
	// Detail is the transport's own rendering of the error.
	Detail string
}

func (e ProtocolError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("%s (sequence %d, value %d)", e.Name, e.Sequence, e.BadValue)
}

// InputInjectionError carries every protocol error observed for one event.
type InputInjectionError struct {
	Event  Event
	Errors []ProtocolError
}

func (e *InputInjectionError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, pe := range e.Errors {
		msgs[i] = pe.Error()
	}
	return fmt.Sprintf("inject %s: %d protocol error(s): %s", e.Event, len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every protocol error to errors.Is / errors.As.
func (e *InputInjectionError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

// Sink accumulates protocol errors delivered by a transport.
type Sink struct {
	mu   sync.Mutex
	errs []ProtocolError
}

// Deliver appends err. Transports call it from whatever goroutine reads the
// connection.
func (s *Sink) Deliver(err ProtocolError) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// Len returns the number of undrained errors.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

// Drain returns and clears the accumulated errors.
func (s *Sink) Drain() []ProtocolError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.errs
	s.errs = nil
	return out
}

// Transport is a connection to one display.
type Transport interface {
	// SetErrorSink routes asynchronous protocol errors to s until the
	// returned function restores the previous routing.
	SetErrorSink(s *Sink) (restore func())
	// Dispatch sends ev without waiting for the server.
	Dispatch(ev Event) error
	// Sync blocks until the server has processed every request sent so far
	// and every error they caused has been delivered to the sink.
	Sync() error
	Close() error
}

// Dialer opens a Transport to a display target such as ":0".
type Dialer func(target string) (Transport, error)

// Injector sends events to displays, reusing one Transport per target.
// It is not safe for concurrent use: each call holds the transport across
// its barrier.
type Injector struct {
	dial  Dialer
	conns map[string]Transport
}

// New returns an Injector that opens transports with dial.
func New(dial Dialer) *Injector {
	return &Injector{dial: dial, conns: make(map[string]Transport)}
}

// Inject sends ev to target and returns an *InputInjectionError holding every
// protocol error the server reported for it.
func (in *Injector) Inject(target string, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	t, err := in.transport(target)
	if err != nil {
		return err
	}

	sink := &Sink{}
	restore := t.SetErrorSink(sink)
	defer restore()

	if err := t.Dispatch(ev); err != nil {
		return fmt.Errorf("dispatch %s: %w", ev, err)
	}
	if err := t.Sync(); err != nil {
		return fmt.Errorf("sync after %s: %w", ev, err)
	}
	if errs := sink.Drain(); len(errs) > 0 {
		slog.Debug("injection rejected", "target", target, "event", ev.String(), "errors", len(errs))
		return &InputInjectionError{Event: ev, Errors: errs}
	}
	slog.Debug("injected", "target", target, "event", ev.String())
	return nil
}

func (in *Injector) transport(target string) (Transport, error) {
	if t, ok := in.conns[target]; ok {
		return t, nil
	}
	t, err := in.dial(target)
	if err != nil {
		return nil, fmt.Errorf("open display %q: %w", target, err)
	}
	in.conns[target] = t
	return t, nil
}

// Close closes every transport the injector opened.
func (in *Injector) Close() error {
	var errs []error
	for target, t := range in.conns {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", target, err))
		}
		delete(in.conns, target)
	}
	return errors.Join(errs...)
}
