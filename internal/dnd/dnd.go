// Package dnd negotiates drag-and-drop transfers between a drag source and a
// drop target.
//
// A Session pairs a payload set with the actions the source allows. A Filter
// declares what a target accepts. Negotiate intersects both: the chosen format
// is the earliest offered format the target accepts, and the chosen action is
// the target's preferred action when compatible, otherwise the first
// compatible action in enumeration order (copy, move).
package dnd

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"go.klb.dev/tkharness/internal/payload"
)

var (
	// ErrNoCompatibleFormat is returned when no offered format is accepted.
	ErrNoCompatibleFormat = errors.New("no compatible format")
	// ErrNoCompatibleAction is returned when no allowed action is supported.
	ErrNoCompatibleAction = errors.New("no compatible action")
	// ErrInvalidState is returned for a drop or cancel on a finished session.
	ErrInvalidState = errors.New("invalid drag session state")
)

// State is the lifecycle state of a Session.
type State int

const (
	Active State = iota
	Dropped
	Cancelled
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Dropped:
		return "dropped"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of a successful negotiation.
type Outcome struct {
	Format payload.Format
	Action Action
}

// Negotiate picks a format and an action. It is a pure function of its
// arguments: the same inputs always produce the same Outcome. The format
// check runs first, so disjoint formats report ErrNoCompatibleFormat even
// when the actions are disjoint too.
func Negotiate(offered []payload.Format, accepted []payload.Format, allowed, supported Actions, preferred Action) (Outcome, error) {
	var chosen payload.Format
	found := false
	for _, f := range offered {
		if accepts(accepted, f) {
			chosen, found = f, true
			break
		}
	}
	if !found {
		return Outcome{}, fmt.Errorf("%w: offered %v, accepted %v", ErrNoCompatibleFormat, offered, accepted)
	}

	common := allowed.Intersect(supported)
	if common.Empty() {
		return Outcome{}, fmt.Errorf("%w: allowed %s, supported %s", ErrNoCompatibleAction, allowed, supported)
	}
	action := common.List()[0]
	if preferred != 0 && common.Has(preferred) {
		action = preferred
	}
	return Outcome{Format: chosen, Action: action}, nil
}

// accepts reports whether f matches an accepted entry. Entries match exactly,
// or as a media range ("text/*", "*/*") against f's base media type.
func accepts(accepted []payload.Format, f payload.Format) bool {
	for _, a := range accepted {
		if a == f {
			return true
		}
		if strings.Contains(string(a), "*") {
			if ok, _ := path.Match(string(a), f.MediaType()); ok {
				return true
			}
		}
	}
	return false
}

// Filter is a drop target's declaration of acceptable formats and actions.
type Filter struct {
	accepted  []payload.Format
	supported Actions
	preferred Action
}

// RegisterDropFilter returns a filter. supported must be non-empty. preferred
// is optional (zero means no preference) and must be a member of supported.
func RegisterDropFilter(accepted []payload.Format, supported Actions, preferred Action) (*Filter, error) {
	if supported.Empty() {
		return nil, fmt.Errorf("%w: empty", ErrInvalidActionSet)
	}
	if preferred != 0 && !supported.Has(preferred) {
		return nil, fmt.Errorf("%w: preferred %s not in %s", ErrInvalidActionSet, preferred, supported)
	}
	return &Filter{
		accepted:  append([]payload.Format(nil), accepted...),
		supported: supported,
		preferred: preferred,
	}, nil
}

// Accepted returns the accepted formats.
func (f *Filter) Accepted() []payload.Format { return append([]payload.Format(nil), f.accepted...) }

// Supported returns the supported actions.
func (f *Filter) Supported() Actions { return f.supported }

// Preferred returns the preferred action, or zero.
func (f *Filter) Preferred() Action { return f.preferred }

// Accepts reports whether the filter accepts format.
func (f *Filter) Accepts(format payload.Format) bool { return accepts(f.accepted, format) }

// Transfer is the committed result of a drop.
type Transfer struct {
	Outcome
	Data []byte
}

// Session is one drag gesture. It is safe for concurrent use.
type Session struct {
	set     *payload.Set
	allowed Actions

	mu       sync.Mutex
	state    State
	transfer *Transfer
	dropErr  error
}

// BeginDrag starts a session offering set with the allowed actions.
func BeginDrag(set *payload.Set, allowed Actions) (*Session, error) {
	if set == nil {
		return nil, errors.New("dnd: nil payload set")
	}
	if allowed.Empty() {
		return nil, fmt.Errorf("%w: empty", ErrInvalidActionSet)
	}
	return &Session{set: set, allowed: allowed}, nil
}

// Offered returns the offered formats in producer order.
func (s *Session) Offered() []payload.Format { return s.set.Formats() }

// Allowed returns the allowed actions.
func (s *Session) Allowed() Actions { return s.allowed }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Negotiate previews the outcome against f without changing state.
func (s *Session) Negotiate(f *Filter) (Outcome, error) {
	return Negotiate(s.set.Formats(), f.accepted, s.allowed, f.supported, f.preferred)
}

// Drop commits the session against f. It runs the negotiation exactly once
// and, on success, resolves the chosen format. The session is Dropped
// afterwards whatever the negotiation result.
func (s *Session) Drop(f *Filter) (Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return Transfer{}, fmt.Errorf("%w: drop in state %s", ErrInvalidState, s.state)
	}
	s.state = Dropped

	out, err := s.Negotiate(f)
	if err != nil {
		s.dropErr = err
		return Transfer{}, err
	}
	data, err := s.set.Resolve(out.Format)
	if err != nil {
		s.dropErr = err
		return Transfer{}, err
	}
	t := Transfer{Outcome: out, Data: data}
	s.transfer = &t
	return t, nil
}

// Result returns the committed drop result, or ErrInvalidState if the session
// was not dropped.
func (s *Session) Result() (Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dropped {
		return Transfer{}, fmt.Errorf("%w: no drop in state %s", ErrInvalidState, s.state)
	}
	if s.dropErr != nil {
		return Transfer{}, s.dropErr
	}
	return *s.transfer, nil
}

// Cancel discards an active session without negotiating.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return fmt.Errorf("%w: cancel in state %s", ErrInvalidState, s.state)
	}
	s.state = Cancelled
	return nil
}
