package dnd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidActionSet is returned when an action set is empty or names an
// unknown action.
var ErrInvalidActionSet = errors.New("invalid action set")

// Action is one drag-and-drop action.
type Action uint8

const (
	Copy Action = 1 << iota
	Move
)

// allActions is the enumeration order used when no preference applies.
var allActions = []Action{Copy, Move}

func (a Action) String() string {
	switch a {
	case Copy:
		return "copy"
	case Move:
		return "move"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ParseAction parses "copy" or "move" (case-insensitive).
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "copy":
		return Copy, nil
	case "move":
		return Move, nil
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidActionSet, s)
	}
}

// Actions is a set of actions.
type Actions uint8

// NewActions returns the set holding as. An empty set is rejected.
func NewActions(as ...Action) (Actions, error) {
	var s Actions
	for _, a := range as {
		if a != Copy && a != Move {
			return 0, fmt.Errorf("%w: %s", ErrInvalidActionSet, a)
		}
		s |= Actions(a)
	}
	if s == 0 {
		return 0, fmt.Errorf("%w: empty", ErrInvalidActionSet)
	}
	return s, nil
}

// ParseActions parses a list such as "copy,move" or "copy|move".
func ParseActions(s string) (Actions, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ' ' })
	as := make([]Action, 0, len(fields))
	for _, f := range fields {
		a, err := ParseAction(f)
		if err != nil {
			return 0, err
		}
		as = append(as, a)
	}
	return NewActions(as...)
}

// Has reports whether a is in the set.
func (s Actions) Has(a Action) bool { return s&Actions(a) != 0 }

// Empty reports whether the set has no members.
func (s Actions) Empty() bool { return s&Actions(Copy|Move) == 0 }

// Intersect returns the actions present in both sets.
func (s Actions) Intersect(o Actions) Actions { return s & o }

// List returns the members in enumeration order.
func (s Actions) List() []Action {
	var out []Action
	for _, a := range allActions {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s Actions) String() string {
	names := make([]string, 0, 2)
	for _, a := range s.List() {
		names = append(names, a.String())
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
