package harness

import (
	"go.klb.dev/tkharness/internal/payload"
	"go.klb.dev/tkharness/internal/selection"
)

// ChannelStatus describes one selection channel.
type ChannelStatus struct {
	Channel string           `json:"channel"`
	Owned   bool             `json:"owned"`
	Serial  uint64           `json:"serial,omitempty"`
	Formats []payload.Format `json:"formats,omitempty"`
}

// DragStatus describes the current drag session. Format and Action are set
// once a drop has transferred data.
type DragStatus struct {
	State   string           `json:"state"`
	Offered []payload.Format `json:"offered"`
	Allowed string           `json:"allowed"`
	Format  payload.Format   `json:"format,omitempty"`
	Action  string           `json:"action,omitempty"`
}

// FilterStatus describes the registered drop filter.
type FilterStatus struct {
	Accept    []payload.Format `json:"accept"`
	Supported string           `json:"supported"`
	Prefer    string           `json:"prefer,omitempty"`
}

// Status is a snapshot of everything the process exposes.
type Status struct {
	Scenario string          `json:"scenario"`
	Backend  string          `json:"backend,omitempty"`
	Display  string          `json:"display,omitempty"`
	Channels []ChannelStatus `json:"channels"`
	Drag     *DragStatus     `json:"drag,omitempty"`
	Filter   *FilterStatus   `json:"filter,omitempty"`
}

// Status returns a snapshot of the harness.
func (h *Harness) Status() Status {
	st := Status{Scenario: h.scenario, Backend: h.backend, Display: h.display}
	for _, ch := range selection.Channels {
		cs := ChannelStatus{Channel: ch.String()}
		if owner, err := h.board.Owner(ch); err == nil {
			cs.Owned = true
			cs.Serial = owner.Serial()
			cs.Formats = owner.Formats()
		}
		st.Channels = append(st.Channels, cs)
	}

	h.mu.Lock()
	drag, filter := h.drag, h.filter
	h.mu.Unlock()

	if drag != nil {
		st.Drag = &DragStatus{
			State:   drag.State().String(),
			Offered: drag.Offered(),
			Allowed: drag.Allowed().String(),
		}
		if res, err := drag.Result(); err == nil {
			st.Drag.Format = res.Format
			st.Drag.Action = res.Action.String()
		}
	}
	if filter != nil {
		st.Filter = &FilterStatus{
			Accept:    filter.Accepted(),
			Supported: filter.Supported().String(),
		}
		if p := filter.Preferred(); p != 0 {
			st.Filter.Prefer = p.String()
		}
	}
	return st
}
