package dnd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/tkharness/internal/payload"
)

func actions(t *testing.T, as ...Action) Actions {
	t.Helper()
	s, err := NewActions(as...)
	require.NoError(t, err)
	return s
}

func session(t *testing.T, allowed Actions, entries ...payload.Entry) *Session {
	t.Helper()
	set, err := payload.Build(entries...)
	require.NoError(t, err)
	s, err := BeginDrag(set, allowed)
	require.NoError(t, err)
	return s
}

func TestPlainTextCopyScenario(t *testing.T) {
	s := session(t, actions(t, Copy), payload.Text(payload.FormatTextPlain, "hi"))
	f, err := RegisterDropFilter([]payload.Format{payload.FormatTextPlain}, actions(t, Copy, Move), 0)
	require.NoError(t, err)

	out, err := s.Negotiate(f)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Format: payload.FormatTextPlain, Action: Copy}, out)

	tr, err := s.Drop(f)
	require.NoError(t, err)
	assert.Equal(t, out, tr.Outcome)
	assert.Equal(t, []byte("hi"), tr.Data)
	assert.Equal(t, Dropped, s.State())
}

func TestNegotiateIsDeterministic(t *testing.T) {
	offered := []payload.Format{payload.FormatHTML, payload.FormatURIList, payload.FormatTextUTF8}
	accepted := []payload.Format{payload.FormatTextUTF8, payload.FormatURIList}
	allowed := actions(t, Copy, Move)
	supported := actions(t, Copy, Move)

	first, err := Negotiate(offered, accepted, allowed, supported, 0)
	require.NoError(t, err)
	assert.Equal(t, payload.FormatURIList, first.Format)
	for range 10 {
		again, err := Negotiate(offered, accepted, allowed, supported, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNegotiateFailures(t *testing.T) {
	copyOnly := actions(t, Copy)
	moveOnly := actions(t, Move)
	plain := []payload.Format{payload.FormatTextPlain}
	html := []payload.Format{payload.FormatHTML}

	_, err := Negotiate(plain, html, copyOnly, copyOnly, 0)
	assert.ErrorIs(t, err, ErrNoCompatibleFormat)

	_, err = Negotiate(plain, plain, copyOnly, moveOnly, 0)
	assert.ErrorIs(t, err, ErrNoCompatibleAction)

	// Format check wins when both fail.
	_, err = Negotiate(plain, html, copyOnly, moveOnly, 0)
	assert.ErrorIs(t, err, ErrNoCompatibleFormat)
	assert.NotErrorIs(t, err, ErrNoCompatibleAction)
}

func TestActionChoice(t *testing.T) {
	both := actions(t, Copy, Move)
	plain := []payload.Format{payload.FormatTextPlain}

	out, err := Negotiate(plain, plain, both, both, 0)
	require.NoError(t, err)
	assert.Equal(t, Copy, out.Action)

	out, err = Negotiate(plain, plain, both, both, Move)
	require.NoError(t, err)
	assert.Equal(t, Move, out.Action)

	// Preference outside the compatible set is ignored.
	out, err = Negotiate(plain, plain, actions(t, Copy), both, Move)
	require.NoError(t, err)
	assert.Equal(t, Copy, out.Action)
}

func TestMediaRangeAcceptance(t *testing.T) {
	s := session(t, actions(t, Copy),
		payload.Text("image/png", "\x89PNG"),
		payload.Text(payload.FormatTextUTF8, "text"),
	)
	f, err := RegisterDropFilter([]payload.Format{"text/*"}, actions(t, Copy), 0)
	require.NoError(t, err)
	assert.True(t, f.Accepts(payload.FormatTextPlain))
	assert.False(t, f.Accepts("image/png"))

	out, err := s.Negotiate(f)
	require.NoError(t, err)
	assert.Equal(t, payload.FormatTextUTF8, out.Format)

	wildcard, err := RegisterDropFilter([]payload.Format{"*/*"}, actions(t, Copy), 0)
	require.NoError(t, err)
	out, err = s.Negotiate(wildcard)
	require.NoError(t, err)
	assert.Equal(t, payload.Format("image/png"), out.Format)
}

func TestSessionStateMachine(t *testing.T) {
	f, err := RegisterDropFilter([]payload.Format{payload.FormatTextPlain}, actions(t, Copy), 0)
	require.NoError(t, err)

	cancelled := session(t, actions(t, Copy), payload.Text(payload.FormatTextPlain, "x"))
	require.NoError(t, cancelled.Cancel())
	assert.Equal(t, Cancelled, cancelled.State())
	assert.ErrorIs(t, cancelled.Cancel(), ErrInvalidState)
	_, err = cancelled.Drop(f)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = cancelled.Result()
	assert.ErrorIs(t, err, ErrInvalidState)

	dropped := session(t, actions(t, Copy), payload.Text(payload.FormatTextPlain, "x"))
	_, err = dropped.Drop(f)
	require.NoError(t, err)
	assert.ErrorIs(t, dropped.Cancel(), ErrInvalidState)
	_, err = dropped.Drop(f)
	assert.ErrorIs(t, err, ErrInvalidState)

	res, err := dropped.Result()
	require.NoError(t, err)
	assert.Equal(t, "x", string(res.Data))
}

func TestFailedDropIsTerminal(t *testing.T) {
	s := session(t, actions(t, Move), payload.Text(payload.FormatTextPlain, "x"))
	f, err := RegisterDropFilter([]payload.Format{payload.FormatTextPlain}, actions(t, Copy), 0)
	require.NoError(t, err)

	_, err = s.Drop(f)
	assert.ErrorIs(t, err, ErrNoCompatibleAction)
	assert.Equal(t, Dropped, s.State())
	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNoCompatibleAction)
	assert.ErrorIs(t, s.Cancel(), ErrInvalidState)
}

func TestInvalidActionSets(t *testing.T) {
	_, err := NewActions()
	assert.ErrorIs(t, err, ErrInvalidActionSet)

	set, err := payload.Build(payload.Text(payload.FormatTextPlain, "x"))
	require.NoError(t, err)
	_, err = BeginDrag(set, 0)
	assert.ErrorIs(t, err, ErrInvalidActionSet)

	_, err = RegisterDropFilter(nil, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidActionSet)

	_, err = RegisterDropFilter(nil, actions(t, Copy), Move)
	assert.ErrorIs(t, err, ErrInvalidActionSet)

	_, err = ParseActions("copy,link")
	assert.ErrorIs(t, err, ErrInvalidActionSet)
}

func TestParseActions(t *testing.T) {
	got, err := ParseActions("copy|move")
	require.NoError(t, err)
	assert.Equal(t, []Action{Copy, Move}, got.List())
	assert.Equal(t, "copy|move", got.String())

	got, err = ParseActions("Move")
	require.NoError(t, err)
	assert.True(t, got.Has(Move))
	assert.False(t, got.Has(Copy))
}
