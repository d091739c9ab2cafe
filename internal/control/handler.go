package control

import (
	"context"
	"fmt"
	"log/slog"

	"go.klb.dev/tkharness/internal/dnd"
	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/message"
	"go.klb.dev/tkharness/internal/payload"
	"go.klb.dev/tkharness/internal/selection"
)

// Handler answers control requests. All three transports share it.
type Handler interface {
	Handle(ctx context.Context, req *message.Request) *message.Response
}

type harnessHandler struct {
	h *harness.Harness
}

// NewHandler returns a Handler backed by h.
func NewHandler(h *harness.Harness) Handler { return &harnessHandler{h: h} }

func (hh *harnessHandler) Handle(_ context.Context, req *message.Request) *message.Response {
	resp, err := hh.dispatch(req)
	if err != nil {
		code := CodeOf(err)
		slog.Debug("control request failed", "op", req.Op, "code", code, "err", err)
		return &message.Response{Op: req.Op, Error: err.Error(), Code: code}
	}
	resp.Op = req.Op
	return resp
}

func (hh *harnessHandler) dispatch(req *message.Request) (*message.Response, error) {
	switch req.Op {
	case message.OpPing:
		return &message.Response{}, nil

	case message.OpStatus:
		st := hh.h.Status()
		return &message.Response{Status: &st}, nil

	case message.OpFormats:
		ch, err := selection.ParseChannel(req.Channel)
		if err != nil {
			return nil, err
		}
		formats, err := hh.h.Formats(ch)
		if err != nil {
			return nil, err
		}
		return &message.Response{Formats: formatStrings(formats)}, nil

	case message.OpResolve:
		ch, err := selection.ParseChannel(req.Channel)
		if err != nil {
			return nil, err
		}
		f, err := payload.ParseFormat(req.Format)
		if err != nil {
			return nil, err
		}
		data, err := hh.h.Resolve(ch, f)
		if err != nil {
			return nil, err
		}
		resp := &message.Response{Format: f.String()}
		resp.SetData(data)
		return resp, nil

	case message.OpRelease:
		ch, err := selection.ParseChannel(req.Channel)
		if err != nil {
			return nil, err
		}
		return &message.Response{Owned: hh.h.Release(ch)}, nil

	case message.OpNegotiate:
		spec, err := filterSpec(req)
		if err != nil {
			return nil, err
		}
		out, err := hh.h.Negotiate(spec)
		if err != nil {
			return nil, err
		}
		return &message.Response{Format: out.Format.String(), Action: out.Action.String()}, nil

	case message.OpDrop:
		spec, err := filterSpec(req)
		if err != nil {
			return nil, err
		}
		t, err := hh.h.Drop(spec)
		if err != nil {
			return nil, err
		}
		resp := &message.Response{
			Format: t.Format.String(),
			Action: t.Action.String(),
			State:  dnd.Dropped.String(),
		}
		resp.SetData(t.Data)
		return resp, nil

	case message.OpCancel:
		if err := hh.h.Cancel(); err != nil {
			return nil, err
		}
		return &message.Response{State: dnd.Cancelled.String()}, nil

	case message.OpBegin:
		s, err := hh.h.Begin()
		if err != nil {
			return nil, err
		}
		return &message.Response{State: s.State().String(), Formats: formatStrings(s.Offered())}, nil

	case message.OpOffer:
		offered, err := parseFormats(req.Offered)
		if err != nil {
			return nil, err
		}
		allowed, err := dnd.ParseActions(req.Actions)
		if err != nil {
			return nil, err
		}
		out, err := hh.h.Offer(offered, allowed)
		if err != nil {
			return nil, err
		}
		return &message.Response{Format: out.Format.String(), Action: out.Action.String()}, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", errBadRequest, req.Op)
}

// filterSpec reads an inline drop filter. Empty fields leave the spec zero,
// which selects the registered filter.
func filterSpec(req *message.Request) (harness.FilterSpec, error) {
	var spec harness.FilterSpec
	accept, err := parseFormats(req.Accept)
	if err != nil {
		return spec, err
	}
	spec.Accept = accept
	if req.Actions != "" {
		if spec.Actions, err = dnd.ParseActions(req.Actions); err != nil {
			return spec, err
		}
	}
	if req.Prefer != "" {
		if spec.Prefer, err = dnd.ParseAction(req.Prefer); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

func parseFormats(ss []string) ([]payload.Format, error) {
	out := make([]payload.Format, 0, len(ss))
	for _, s := range ss {
		f, err := payload.ParseFormat(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func formatStrings(formats []payload.Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = f.String()
	}
	return out
}
