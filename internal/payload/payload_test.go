package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildResolvesExactlyOfferedFormats(t *testing.T) {
	set, err := Build(
		Text(FormatHTML, "<p>A</p>"),
		Text(FormatURIList, "file:///a\r\n"),
		Text(FormatTextUTF8, "A"),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	for _, f := range []Format{FormatHTML, FormatURIList, FormatTextUTF8} {
		_, err := set.Resolve(f)
		assert.NoError(t, err, f)
	}
	for _, f := range []Format{FormatTextPlain, "text/plain; charset=utf-8", "image/png", ""} {
		_, err := set.Resolve(f)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, f)
	}
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, err := Build(Text(FormatTextPlain, "a"), Text(FormatHTML, "b"), Text(FormatTextPlain, "a"))
	assert.ErrorIs(t, err, ErrDuplicateFormat)

	_, err = Build(Text(FormatTextPlain, "a"), Lazy(FormatTextPlain, func() ([]byte, error) { return nil, nil }))
	assert.ErrorIs(t, err, ErrDuplicateFormat)
}

func TestFormatsKeepProducerOrder(t *testing.T) {
	set, err := Build(Text(FormatURIList, ""), Text(FormatHTML, ""), Text(FormatTextUTF8, ""))
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatURIList, FormatHTML, FormatTextUTF8}, set.Formats())
}

func TestResolveByteFidelity(t *testing.T) {
	text := "/some/path/With Spaces/& $p€¢ïåł çħāřß\x00tail"
	set, err := Build(Text(FormatHTML, "<p>A</p>"), Text(FormatTextUTF8, text))
	require.NoError(t, err)

	got, err := set.Resolve(FormatTextUTF8)
	require.NoError(t, err)
	assert.Equal(t, []byte(text), got)

	// Mutating the returned slice must not leak into the set.
	got[0] = 'X'
	again, err := set.Resolve(FormatTextUTF8)
	require.NoError(t, err)
	assert.Equal(t, []byte(text), again)
}

func TestLazyProducerRunsOncePerResolve(t *testing.T) {
	calls := 0
	set, err := Build(Lazy(FormatTextPlain, func() ([]byte, error) {
		calls++
		return []byte("lazy"), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	for i := 1; i <= 3; i++ {
		b, err := set.Resolve(FormatTextPlain)
		require.NoError(t, err)
		assert.Equal(t, "lazy", string(b))
		assert.Equal(t, i, calls)
	}
}

func TestLazyProducerError(t *testing.T) {
	boom := errors.New("boom")
	set, err := Build(Lazy(FormatTextPlain, func() ([]byte, error) { return nil, boom }))
	require.NoError(t, err)
	_, err = set.Resolve(FormatTextPlain)
	assert.ErrorIs(t, err, boom)
}

func TestPickPrefersEarliestOffered(t *testing.T) {
	set, err := Build(Text(FormatHTML, ""), Text(FormatURIList, ""), Text(FormatTextUTF8, ""))
	require.NoError(t, err)

	accept := map[Format]bool{FormatTextUTF8: true, FormatURIList: true}
	f, ok := set.Pick(func(f Format) bool { return accept[f] })
	assert.True(t, ok)
	assert.Equal(t, FormatURIList, f)

	_, ok = set.Pick(func(Format) bool { return false })
	assert.False(t, ok)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("  text/plain;charset=utf-8 ")
	require.NoError(t, err)
	assert.Equal(t, FormatTextUTF8, f)
	assert.Equal(t, "text/plain", f.MediaType())
	assert.True(t, f.IsText())

	for _, ok := range []string{"text/*", "*/*", "image/png", "text/uri-list"} {
		_, err := ParseFormat(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "   ", "UTF8_STRING", "TARGETS", "plain", "text/", "/plain"} {
		_, err := ParseFormat(bad)
		assert.ErrorIs(t, err, ErrInvalidFormat, bad)
	}
}

func TestURIList(t *testing.T) {
	got := URIList(
		"/some/path/With Spaces/& $p€¢ïåł çħāřß",
		"/tmp/[Screenshot from 12:04:42].png",
	)
	want := "file:///some/path/With%20Spaces/&%20$p%E2%82%AC%C2%A2%C3%AF%C3%A5%C5%82%20%C3%A7%C4%A7%C4%81%C5%99%C3%9F\r\n" +
		"file:///tmp/%5BScreenshot%20from%2012:04:42%5D.png\r\n"
	assert.Equal(t, want, string(got))

	paths, err := ParseURIList(got)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/some/path/With Spaces/& $p€¢ïåł çħāřß",
		"/tmp/[Screenshot from 12:04:42].png",
	}, paths)
}
