// Package harness holds the state one scenario process exposes to its peers:
// the selection board, the current drag session and the drop filter. It is
// transport-agnostic; the control package serves it over a socket.
package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/tkharness/internal/dnd"
	"go.klb.dev/tkharness/internal/payload"
	"go.klb.dev/tkharness/internal/selection"
)

var (
	// ErrNoDragSession is returned by drag operations before any BeginDrag.
	ErrNoDragSession = errors.New("no drag session")
	// ErrNoDropFilter is returned when an operation needs the registered
	// drop filter and none was registered.
	ErrNoDropFilter = errors.New("no drop filter registered")
)

// Binding publishes board ownership on a real display. Claim is called after
// the board accepted a new owner; on error the ownership is rolled back.
type Binding interface {
	Claim(ch selection.Channel) error
}

// FilterSpec describes a drop filter inline. A zero FilterSpec means "use the
// registered filter".
type FilterSpec struct {
	Accept  []payload.Format
	Actions dnd.Actions
	Prefer  dnd.Action
}

func (s FilterSpec) zero() bool { return len(s.Accept) == 0 && s.Actions.Empty() && s.Prefer == 0 }

type dragTemplate struct {
	set     *payload.Set
	allowed dnd.Actions
}

// Harness is the per-process registry. It is safe for concurrent use.
type Harness struct {
	scenario string
	backend  string
	display  string
	board    *selection.Board

	mu       sync.Mutex
	binding  Binding
	template *dragTemplate
	drag     *dnd.Session
	filter   *dnd.Filter
}

// Option configures a Harness.
type Option func(*Harness)

// WithBinding publishes every Acquire through b.
func WithBinding(b Binding) Option { return func(h *Harness) { h.binding = b } }

// WithDisplay records which backend and display the process drives.
func WithDisplay(backend, display string) Option {
	return func(h *Harness) {
		h.backend = backend
		h.display = display
	}
}

// New returns a harness for scenario using board.
func New(scenario string, board *selection.Board, opts ...Option) *Harness {
	h := &Harness{scenario: scenario, board: board}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Board returns the selection board.
func (h *Harness) Board() *selection.Board { return h.board }

// Acquire makes set the content of ch, locally and on the bound display.
func (h *Harness) Acquire(ch selection.Channel, set *payload.Set) (*selection.Handle, error) {
	owner, err := h.board.Acquire(ch, set)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	b := h.binding
	h.mu.Unlock()
	if b != nil {
		if err := b.Claim(ch); err != nil {
			h.board.Restore(owner)
			return nil, err
		}
	}
	LogFormats("selection acquired", set.Formats(), "channel", ch.String(), "serial", owner.Serial())
	return owner, nil
}

// Formats lists the formats the current owner of ch offers.
func (h *Harness) Formats(ch selection.Channel) ([]payload.Format, error) {
	owner, err := h.board.Owner(ch)
	if err != nil {
		return nil, err
	}
	return owner.Formats(), nil
}

// Resolve returns the bytes of f from the current owner of ch.
func (h *Harness) Resolve(ch selection.Channel, f payload.Format) ([]byte, error) {
	data, err := h.board.Resolve(ch, f)
	if err != nil {
		return nil, err
	}
	LogData("selection resolved", f, data)
	return data, nil
}

// Release makes ch ownerless. It reports whether there was an owner.
func (h *Harness) Release(ch selection.Channel) bool {
	released := h.board.Revoke(ch)
	if released {
		slog.Info("selection released", "channel", ch.String())
	}
	return released
}

// BeginDrag starts a drag session and remembers it as the template Begin
// re-arms from.
func (h *Harness) BeginDrag(set *payload.Set, allowed dnd.Actions) (*dnd.Session, error) {
	s, err := dnd.BeginDrag(set, allowed)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.template = &dragTemplate{set: set, allowed: allowed}
	h.drag = s
	h.mu.Unlock()
	LogFormats("drag started", set.Formats(), "actions", allowed.String())
	return s, nil
}

// Begin starts a new session from the template once the current one has
// ended.
func (h *Harness) Begin() (*dnd.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.template == nil {
		return nil, ErrNoDragSession
	}
	if st := h.drag.State(); st == dnd.Active {
		return nil, fmt.Errorf("%w: current session is %s", dnd.ErrInvalidState, st)
	}
	s, err := dnd.BeginDrag(h.template.set, h.template.allowed)
	if err != nil {
		return nil, err
	}
	h.drag = s
	slog.Info("drag re-armed", "actions", h.template.allowed.String())
	return s, nil
}

// Session returns the current drag session.
func (h *Harness) Session() (*dnd.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.drag == nil {
		return nil, ErrNoDragSession
	}
	return h.drag, nil
}

// RegisterDropFilter validates and stores the process's drop filter.
func (h *Harness) RegisterDropFilter(spec FilterSpec) (*dnd.Filter, error) {
	f, err := dnd.RegisterDropFilter(spec.Accept, spec.Actions, spec.Prefer)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.filter = f
	h.mu.Unlock()
	LogFormats("drop filter registered", f.Accepted(), "actions", f.Supported().String())
	return f, nil
}

// DropFilter returns the registered drop filter.
func (h *Harness) DropFilter() (*dnd.Filter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.filter == nil {
		return nil, ErrNoDropFilter
	}
	return h.filter, nil
}

func (h *Harness) filterFor(spec FilterSpec) (*dnd.Filter, error) {
	if spec.zero() {
		return h.DropFilter()
	}
	return dnd.RegisterDropFilter(spec.Accept, spec.Actions, spec.Prefer)
}

// Negotiate previews the current session against the given filter without
// changing its state.
func (h *Harness) Negotiate(spec FilterSpec) (dnd.Outcome, error) {
	s, err := h.Session()
	if err != nil {
		return dnd.Outcome{}, err
	}
	f, err := h.filterFor(spec)
	if err != nil {
		return dnd.Outcome{}, err
	}
	return s.Negotiate(f)
}

// Drop commits the current session against spec.
func (h *Harness) Drop(spec FilterSpec) (dnd.Transfer, error) {
	s, err := h.Session()
	if err != nil {
		return dnd.Transfer{}, err
	}
	f, err := h.filterFor(spec)
	if err != nil {
		return dnd.Transfer{}, err
	}
	t, err := s.Drop(f)
	if err != nil {
		slog.Info("drop refused", "err", err)
		return dnd.Transfer{}, err
	}
	slog.Info("drop accepted", "format", t.Format.String(), "action", t.Action.String())
	LogData("drop transfer", t.Format, t.Data)
	return t, nil
}

// Cancel cancels the current session.
func (h *Harness) Cancel() error {
	s, err := h.Session()
	if err != nil {
		return err
	}
	if err := s.Cancel(); err != nil {
		return err
	}
	slog.Info("drag cancelled")
	return nil
}

// Offer negotiates a hypothetical drag offer against the registered filter,
// as a drag source hovering over this process's drop target would.
func (h *Harness) Offer(offered []payload.Format, allowed dnd.Actions) (dnd.Outcome, error) {
	f, err := h.DropFilter()
	if err != nil {
		return dnd.Outcome{}, err
	}
	if allowed.Empty() {
		return dnd.Outcome{}, fmt.Errorf("%w: empty", dnd.ErrInvalidActionSet)
	}
	return dnd.Negotiate(offered, f.Accepted(), allowed, f.Supported(), f.Preferred())
}

// Close releases both channels. Later Acquire calls fail.
func (h *Harness) Close() {
	h.board.Close()
}
