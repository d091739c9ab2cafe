// Package selection binds payload sets to the two selection channels of a
// display: the clipboard and the primary selection.
//
// Each channel has at most one owner. Acquiring a channel replaces its owner
// atomically and revokes the previous Handle; resolving through a revoked
// Handle fails with ErrOwnershipLost. The two channels never affect each other.
package selection

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.klb.dev/tkharness/internal/payload"
)

var (
	// ErrOwnershipLost is returned when resolving through a revoked Handle.
	ErrOwnershipLost = errors.New("selection ownership lost")
	// ErrNoOwner is returned when resolving a channel nobody owns.
	ErrNoOwner = errors.New("selection has no owner")
	// ErrUnknownChannel is returned by ParseChannel.
	ErrUnknownChannel = errors.New("unknown selection channel")
)

// Channel identifies one of the two selection channels.
type Channel int

const (
	Clipboard Channel = iota
	Primary

	numChannels = 2
)

// Channels lists every channel in a stable order.
var Channels = [numChannels]Channel{Clipboard, Primary}

func (c Channel) String() string {
	switch c {
	case Clipboard:
		return "clipboard"
	case Primary:
		return "primary-selection"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseChannel accepts "clipboard" and "primary-selection" (or "primary").
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "", "clipboard":
		return Clipboard, nil
	case "primary-selection", "primary":
		return Primary, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

func (c Channel) valid() bool { return c >= 0 && c < numChannels }

// Handle is one ownership of a channel.
type Handle struct {
	board   *Board
	channel Channel
	set     *payload.Set
	serial  uint64
	revoked atomic.Bool

	// prev is the owner this handle displaced, kept until the next change
	// so a failed acquisition can be undone. Guarded by board.mu.
	prev *Handle
}

// Channel returns the channel this handle owns (or owned).
func (h *Handle) Channel() Channel { return h.channel }

// Serial is a board-wide, strictly increasing acquisition number.
func (h *Handle) Serial() uint64 { return h.serial }

// Formats returns the owned payload's formats in producer order.
func (h *Handle) Formats() []payload.Format { return h.set.Formats() }

// Revoked reports whether ownership has been replaced or released.
func (h *Handle) Revoked() bool { return h.revoked.Load() }

// Resolve returns the bytes for f. A request that observes revocation at any
// point, including while a lazy producer runs, fails with ErrOwnershipLost.
func (h *Handle) Resolve(f payload.Format) ([]byte, error) {
	if h.Revoked() {
		return nil, fmt.Errorf("%s: %w", h.channel, ErrOwnershipLost)
	}
	b, err := h.set.Resolve(f)
	if h.Revoked() {
		return nil, fmt.Errorf("%s: %w", h.channel, ErrOwnershipLost)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.channel, err)
	}
	return b, nil
}

// Listener observes ownership transitions on a Board.
type Listener interface {
	// OwnerChanged is called after ch changed owner. h is nil when the
	// channel became ownerless.
	OwnerChanged(ch Channel, h *Handle)
}

// Board holds the owners of both channels for one display connection.
// It is safe for concurrent use.
type Board struct {
	mu       sync.Mutex
	owners   [numChannels]*Handle
	serial   uint64
	closed   bool
	listener Listener
}

// NewBoard returns a board with both channels ownerless.
func NewBoard() *Board { return &Board{} }

// SetListener registers l. Only one listener is supported; a later call
// replaces it.
func (b *Board) SetListener(l Listener) {
	b.mu.Lock()
	b.listener = l
	b.mu.Unlock()
}

// Acquire makes set the content of ch. The previous owner, if any, is revoked
// without error.
func (b *Board) Acquire(ch Channel, set *payload.Set) (*Handle, error) {
	if !ch.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, int(ch))
	}
	if set == nil {
		return nil, errors.New("selection: nil payload set")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("selection: board closed")
	}
	b.serial++
	prev := b.owners[ch]
	h := &Handle{board: b, channel: ch, set: set, serial: b.serial, prev: prev}
	b.owners[ch] = h
	if prev != nil {
		prev.revoked.Store(true)
		prev.prev = nil
	}
	l := b.listener
	b.mu.Unlock()

	if l != nil {
		l.OwnerChanged(ch, h)
	}
	return h, nil
}

// Owner returns the current owner of ch.
func (b *Board) Owner(ch Channel) (*Handle, error) {
	if !ch.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, int(ch))
	}
	b.mu.Lock()
	h := b.owners[ch]
	b.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("%s: %w", ch, ErrNoOwner)
	}
	return h, nil
}

// Resolve resolves f through the current owner of ch.
func (b *Board) Resolve(ch Channel, f payload.Format) ([]byte, error) {
	h, err := b.Owner(ch)
	if err != nil {
		return nil, err
	}
	return h.Resolve(f)
}

// Release ends h's ownership. If h still owns its channel the channel becomes
// ownerless. Releasing a revoked handle is a no-op.
func (b *Board) Release(h *Handle) {
	b.mu.Lock()
	if b.owners[h.channel] != h {
		b.mu.Unlock()
		return
	}
	b.owners[h.channel] = nil
	h.revoked.Store(true)
	h.prev = nil
	l := b.listener
	b.mu.Unlock()

	if l != nil {
		l.OwnerChanged(h.channel, nil)
	}
}

// Restore undoes the acquisition that created h: the owner h displaced gets
// the channel back, valid again. It does nothing and returns false once h is
// no longer the current owner.
func (b *Board) Restore(h *Handle) bool {
	b.mu.Lock()
	if b.owners[h.channel] != h {
		b.mu.Unlock()
		return false
	}
	prev := h.prev
	h.prev = nil
	h.revoked.Store(true)
	b.owners[h.channel] = prev
	if prev != nil {
		prev.revoked.Store(false)
	}
	l := b.listener
	b.mu.Unlock()

	if l != nil {
		l.OwnerChanged(h.channel, prev)
	}
	return true
}

// Revoke drops whatever owner ch has, e.g. because another client on the
// display took the selection. It reports whether an owner was dropped.
func (b *Board) Revoke(ch Channel) bool {
	if !ch.valid() {
		return false
	}
	b.mu.Lock()
	h := b.owners[ch]
	if h == nil {
		b.mu.Unlock()
		return false
	}
	b.owners[ch] = nil
	h.revoked.Store(true)
	h.prev = nil
	l := b.listener
	b.mu.Unlock()

	if l != nil {
		l.OwnerChanged(ch, nil)
	}
	return true
}

// Close releases both channels, as happens when the owning process exits.
// Further Acquire calls fail.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	for _, ch := range Channels {
		b.Revoke(ch)
	}
}
