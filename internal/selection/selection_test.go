package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/tkharness/internal/payload"
)

func mustSet(t *testing.T, entries ...payload.Entry) *payload.Set {
	t.Helper()
	s, err := payload.Build(entries...)
	require.NoError(t, err)
	return s
}

type recorder struct {
	events []string
}

func (r *recorder) OwnerChanged(ch Channel, h *Handle) {
	if h == nil {
		r.events = append(r.events, ch.String()+":none")
		return
	}
	r.events = append(r.events, ch.String()+":owned")
}

func TestClipboardRoundTrip(t *testing.T) {
	b := NewBoard()
	set := mustSet(t,
		payload.Text(payload.FormatHTML, "<p>A</p>"),
		payload.Text(payload.FormatTextUTF8, "A"),
	)
	h, err := b.Acquire(Clipboard, set)
	require.NoError(t, err)

	got, err := h.Resolve(payload.FormatTextUTF8)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), got)

	got, err = b.Resolve(Clipboard, payload.FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, []byte("<p>A</p>"), got)

	_, err = h.Resolve(payload.FormatTextPlain)
	assert.ErrorIs(t, err, payload.ErrUnsupportedFormat)
}

func TestAcquireRevokesPreviousOwner(t *testing.T) {
	b := NewBoard()
	a, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "a")))
	require.NoError(t, err)
	bh, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatHTML, "<b>b</b>")))
	require.NoError(t, err)

	assert.True(t, a.Revoked())
	_, err = a.Resolve(payload.FormatTextPlain)
	assert.ErrorIs(t, err, ErrOwnershipLost)

	got, err := bh.Resolve(payload.FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "<b>b</b>", string(got))
	assert.Greater(t, bh.Serial(), a.Serial())
}

func TestOwnershipLostTakesPrecedence(t *testing.T) {
	b := NewBoard()
	a, err := b.Acquire(Primary, mustSet(t, payload.Text(payload.FormatTextPlain, "a")))
	require.NoError(t, err)
	_, err = b.Acquire(Primary, mustSet(t, payload.Text(payload.FormatTextPlain, "b")))
	require.NoError(t, err)

	_, err = a.Resolve("image/png")
	assert.ErrorIs(t, err, ErrOwnershipLost)
	assert.NotErrorIs(t, err, payload.ErrUnsupportedFormat)
}

func TestChannelsAreIndependent(t *testing.T) {
	b := NewBoard()
	clip, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "clip")))
	require.NoError(t, err)
	prim, err := b.Acquire(Primary, mustSet(t, payload.Text(payload.FormatTextPlain, "prim")))
	require.NoError(t, err)

	assert.False(t, clip.Revoked())
	_, err = b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "clip2")))
	require.NoError(t, err)
	assert.False(t, prim.Revoked())

	got, err := b.Resolve(Primary, payload.FormatTextPlain)
	require.NoError(t, err)
	assert.Equal(t, "prim", string(got))

	b.Release(prim)
	got, err = b.Resolve(Clipboard, payload.FormatTextPlain)
	require.NoError(t, err)
	assert.Equal(t, "clip2", string(got))
}

func TestNoOwner(t *testing.T) {
	b := NewBoard()
	_, err := b.Resolve(Clipboard, payload.FormatTextPlain)
	assert.ErrorIs(t, err, ErrNoOwner)

	h, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "x")))
	require.NoError(t, err)
	b.Close()

	assert.True(t, h.Revoked())
	_, err = b.Resolve(Clipboard, payload.FormatTextPlain)
	assert.ErrorIs(t, err, ErrNoOwner)
	_, err = b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "y")))
	assert.Error(t, err)
}

func TestRevokeDuringLazyProduce(t *testing.T) {
	b := NewBoard()
	var h *Handle
	set := mustSet(t, payload.Lazy(payload.FormatTextPlain, func() ([]byte, error) {
		// Another owner arrives while the request is in flight.
		b.Revoke(h.Channel())
		return []byte("stale"), nil
	}))
	var err error
	h, err = b.Acquire(Clipboard, set)
	require.NoError(t, err)

	_, err = h.Resolve(payload.FormatTextPlain)
	assert.ErrorIs(t, err, ErrOwnershipLost)
}

func TestListener(t *testing.T) {
	b := NewBoard()
	r := &recorder{}
	b.SetListener(r)

	h, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "x")))
	require.NoError(t, err)
	b.Release(h)
	b.Release(h)
	assert.False(t, b.Revoke(Primary))

	assert.Equal(t, []string{"clipboard:owned", "clipboard:none"}, r.events)
}

func TestRestore(t *testing.T) {
	b := NewBoard()
	r := &recorder{}
	b.SetListener(r)

	first, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "first")))
	require.NoError(t, err)
	second, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatHTML, "second")))
	require.NoError(t, err)
	assert.True(t, first.Revoked())

	assert.True(t, b.Restore(second))
	assert.False(t, b.Restore(second))
	assert.True(t, second.Revoked())
	assert.False(t, first.Revoked())

	got, err := b.Resolve(Clipboard, payload.FormatTextPlain)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	_, err = second.Resolve(payload.FormatHTML)
	assert.ErrorIs(t, err, ErrOwnershipLost)
	assert.Equal(t, []string{"clipboard:owned", "clipboard:owned", "clipboard:owned"}, r.events)

	// Without a displaced owner the channel ends up empty.
	only, err := b.Acquire(Primary, mustSet(t, payload.Text(payload.FormatTextPlain, "p")))
	require.NoError(t, err)
	assert.True(t, b.Restore(only))
	_, err = b.Owner(Primary)
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestRestoreAfterNewerOwner(t *testing.T) {
	b := NewBoard()
	first, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "1")))
	require.NoError(t, err)
	second, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "2")))
	require.NoError(t, err)
	third, err := b.Acquire(Clipboard, mustSet(t, payload.Text(payload.FormatTextPlain, "3")))
	require.NoError(t, err)

	assert.False(t, b.Restore(second))
	assert.True(t, first.Revoked())
	owner, err := b.Owner(Clipboard)
	require.NoError(t, err)
	assert.Same(t, third, owner)
}

func TestParseChannel(t *testing.T) {
	for in, want := range map[string]Channel{
		"clipboard":         Clipboard,
		"":                  Clipboard,
		"primary":           Primary,
		"primary-selection": Primary,
	} {
		got, err := ParseChannel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseChannel("secondary")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
