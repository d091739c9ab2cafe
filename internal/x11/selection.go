package x11

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"golang.org/x/text/encoding/charmap"

	"go.klb.dev/tkharness/internal/payload"
	"go.klb.dev/tkharness/internal/selection"
)

// Special targets answered by the owner itself.
const (
	targetTargets = "TARGETS"
	targetUTF8    = "UTF8_STRING"
	targetText    = "TEXT"
	targetString  = "STRING"
)

// textAliases are the legacy X text targets served from the UTF-8 text entry.
var textAliases = []string{targetUTF8, targetText, targetString}

// Owner publishes a selection.Board on an X display. It owns an InputOnly
// window, claims CLIPBOARD and PRIMARY on behalf of the board, and answers
// SelectionRequest events by resolving through the board's current owner.
type Owner struct {
	conn  *Conn
	board *selection.Board
	win   xproto.Window
	sel   [len(selection.Channels)]xproto.Atom

	// mu orders Claim against dropping the X selection in OwnerChanged.
	mu     sync.Mutex
	closed atomic.Bool
}

// NewOwner creates the owner window on c and registers as board listener.
func NewOwner(c *Conn, board *selection.Board) (*Owner, error) {
	win, err := xproto.NewWindowId(c.X)
	if err != nil {
		return nil, fmt.Errorf("x11: window id: %w", err)
	}
	err = xproto.CreateWindowChecked(c.X, 0, win, c.Screen.Root,
		-1, -1, 1, 1, 0, xproto.WindowClassInputOnly, 0, 0, nil).Check()
	if err != nil {
		return nil, fmt.Errorf("x11: create owner window: %w", err)
	}

	clipboard, err := c.Atom("CLIPBOARD")
	if err != nil {
		return nil, err
	}
	o := &Owner{conn: c, board: board, win: win}
	o.sel[selection.Clipboard] = clipboard
	o.sel[selection.Primary] = xproto.AtomPrimary

	board.SetListener(o)
	return o, nil
}

// Claim makes the owner window the X selection owner for ch and verifies the
// server agreed.
func (o *Owner) Claim(ch selection.Channel) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	atom := o.sel[ch]
	if err := xproto.SetSelectionOwnerChecked(o.conn.X, o.win, atom, xproto.TimeCurrentTime).Check(); err != nil {
		return fmt.Errorf("x11: set %s owner: %w", ch, err)
	}
	reply, err := xproto.GetSelectionOwner(o.conn.X, atom).Reply()
	if err != nil {
		return fmt.Errorf("x11: get %s owner: %w", ch, err)
	}
	if reply.Owner != o.win {
		return fmt.Errorf("x11: %s ownership refused (owner is 0x%x)", ch, reply.Owner)
	}
	slog.Debug("x11 selection claimed", "channel", ch.String(), "window", fmt.Sprintf("0x%x", o.win))
	return nil
}

// OwnerChanged implements selection.Listener. When a channel becomes
// ownerless locally while this window still holds it on the server, the X
// selection is dropped too. A notification that arrives after the channel
// was acquired again is ignored.
func (o *Owner) OwnerChanged(ch selection.Channel, h *selection.Handle) {
	if h != nil || o.closed.Load() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.board.Owner(ch); err == nil {
		return
	}
	reply, err := xproto.GetSelectionOwner(o.conn.X, o.sel[ch]).Reply()
	if err != nil || reply.Owner != o.win {
		return
	}
	xproto.SetSelectionOwner(o.conn.X, xproto.AtomNone, o.sel[ch], xproto.TimeCurrentTime)
}

// Serve handles selection events until ctx is done or the connection closes.
func (o *Owner) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		o.Close()
	}()
	for {
		ev, xerr := o.conn.X.WaitForEvent()
		if ev == nil && xerr == nil {
			if err := ctx.Err(); err != nil {
				return nil
			}
			return errors.New("x11: connection closed")
		}
		if xerr != nil {
			slog.Warn("x11 error on selection connection", "err", xerr.Error())
			continue
		}
		if o.closed.Load() {
			continue
		}
		switch e := ev.(type) {
		case xproto.SelectionRequestEvent:
			o.handleRequest(e)
		case xproto.SelectionClearEvent:
			o.handleClear(e)
		}
	}
}

func (o *Owner) channel(atom xproto.Atom) (selection.Channel, bool) {
	for _, ch := range selection.Channels {
		if o.sel[ch] == atom {
			return ch, true
		}
	}
	return 0, false
}

func (o *Owner) handleClear(e xproto.SelectionClearEvent) {
	ch, ok := o.channel(e.Selection)
	if !ok || e.Owner != o.win {
		return
	}
	if o.board.Revoke(ch) {
		slog.Info("selection taken by another client", "channel", ch.String())
	}
}

func (o *Owner) handleRequest(e xproto.SelectionRequestEvent) {
	prop := e.Property
	if prop == xproto.AtomNone {
		// Obsolete requestors leave the property to the owner.
		prop = e.Target
	}
	if err := o.answer(e, prop); err != nil {
		slog.Debug("selection request refused", "err", err)
		prop = xproto.AtomNone
	}
	notify := xproto.SelectionNotifyEvent{
		Time:      e.Time,
		Requestor: e.Requestor,
		Selection: e.Selection,
		Target:    e.Target,
		Property:  prop,
	}
	xproto.SendEvent(o.conn.X, false, e.Requestor, xproto.EventMaskNoEvent, string(notify.Bytes()))
}

func (o *Owner) answer(e xproto.SelectionRequestEvent, prop xproto.Atom) error {
	ch, ok := o.channel(e.Selection)
	if !ok {
		return fmt.Errorf("unknown selection atom %d", e.Selection)
	}
	h, err := o.board.Owner(ch)
	if err != nil {
		return err
	}
	target, err := o.conn.AtomName(e.Target)
	if err != nil {
		return err
	}

	if target == targetTargets {
		names := targetNames(h.Formats())
		buf := make([]byte, 4*len(names))
		for i, name := range names {
			a, err := o.conn.Atom(name)
			if err != nil {
				return err
			}
			xgb.Put32(buf[i*4:], uint32(a))
		}
		return xproto.ChangePropertyChecked(o.conn.X, xproto.PropModeReplace, e.Requestor, prop,
			xproto.AtomAtom, 32, uint32(len(names)), buf).Check()
	}

	format, ok := formatForTarget(h.Formats(), target)
	if !ok {
		return fmt.Errorf("%w: %s", payload.ErrUnsupportedFormat, target)
	}
	data, err := h.Resolve(format)
	if err != nil {
		return err
	}
	data, typeName, err := encodeTarget(target, data)
	if err != nil {
		return err
	}
	propType := e.Target
	if typeName != target {
		if propType, err = o.conn.Atom(typeName); err != nil {
			return err
		}
	}
	if limit := o.conn.maxPropertyBytes(); len(data) > limit {
		return fmt.Errorf("%s payload is %d bytes, over the %d byte request limit", format, len(data), limit)
	}
	slog.Debug("selection request served",
		"channel", ch.String(),
		"target", target,
		"format", format.String(),
		"size_bytes", len(data),
	)
	return xproto.ChangePropertyChecked(o.conn.X, xproto.PropModeReplace, e.Requestor, prop,
		propType, 8, uint32(len(data)), data).Check()
}

// Close detaches from the board and closes the connection; the server
// destroys the window and drops any selection it still owns.
func (o *Owner) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	o.board.SetListener(nil)
	_ = o.conn.Close()
}

// targetNames lists the TARGETS reply in producer order. The X text aliases
// follow the UTF-8 plain text entry.
func targetNames(formats []payload.Format) []string {
	out := []string{targetTargets}
	aliased := false
	text, hasText := textSource(formats)
	for _, f := range formats {
		out = append(out, string(f))
		if hasText && f == text && !aliased {
			out = append(out, textAliases...)
			aliased = true
		}
	}
	return out
}

// formatForTarget maps a requested target name onto an offered format.
func formatForTarget(formats []payload.Format, target string) (payload.Format, bool) {
	for _, f := range formats {
		if string(f) == target {
			return f, true
		}
	}
	for _, alias := range textAliases {
		if alias == target {
			return textSource(formats)
		}
	}
	return "", false
}

// encodeTarget converts the bytes of the text entry for a legacy text
// target and names the property type to store them under. STRING is
// ISO 8859-1; text that does not fit is refused. TEXT is answered as
// UTF8_STRING. Any other target is passed through unchanged.
func encodeTarget(target string, data []byte) ([]byte, string, error) {
	switch target {
	case targetString:
		latin1, err := charmap.ISO8859_1.NewEncoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: not representable in ISO 8859-1", payload.ErrUnsupportedFormat, target)
		}
		return latin1, targetString, nil
	case targetText:
		return data, targetUTF8, nil
	default:
		return data, target, nil
	}
}

// textSource picks the entry that backs the X text aliases: UTF-8 plain
// text when offered, else bare text/plain.
func textSource(formats []payload.Format) (payload.Format, bool) {
	var fallback payload.Format
	for _, f := range formats {
		if f.MediaType() != "text/plain" {
			continue
		}
		if strings.Contains(strings.ToLower(string(f)), "charset=utf-8") {
			return f, true
		}
		if fallback == "" && !strings.Contains(string(f), "charset=") {
			fallback = f
		}
	}
	return fallback, fallback != ""
}
