package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/tkharness/internal/control"
	"go.klb.dev/tkharness/internal/dnd"
	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/inject"
	"go.klb.dev/tkharness/internal/message"
	"go.klb.dev/tkharness/internal/payload"
	"go.klb.dev/tkharness/internal/selection"
)

func TestClipboardSetDefaults(t *testing.T) {
	set, err := clipboardSet(defaultClipboardHTML, defaultClipboardPaths, "")
	require.NoError(t, err)
	assert.Equal(t, []payload.Format{payload.FormatHTML, payload.FormatURIList, payload.FormatTextUTF8}, set.Formats())

	uris, err := set.Resolve(payload.FormatURIList)
	require.NoError(t, err)
	assert.Equal(t,
		"file:///some/path/With%20Spaces/&%20$p%E2%82%AC%C2%A2%C3%AF%C3%A5%C5%82%20%C3%A7%C4%A7%C4%81%C5%99%C3%9F\r\n"+
			"file:///tmp/%5BScreenshot%20from%2012:04:42%5D.png\r\n",
		string(uris))

	text, err := set.Resolve(payload.FormatTextUTF8)
	require.NoError(t, err)
	assert.Equal(t, "/some/path/With Spaces/& $p€¢ïåł çħāřß\n/tmp/[Screenshot from 12:04:42].png", string(text))
}

func TestClipboardSetTextOverride(t *testing.T) {
	set, err := clipboardSet("<i>x</i>", []string{"/a"}, "custom")
	require.NoError(t, err)
	text, err := set.Resolve(payload.FormatTextUTF8)
	require.NoError(t, err)
	assert.Equal(t, "custom", string(text))
}

func TestFilterSpecFlags(t *testing.T) {
	spec, err := filterSpecFlags([]string{"text/plain;charset=utf-8", "text/*"}, "copy|move", "move")
	require.NoError(t, err)
	assert.Equal(t, []payload.Format{payload.FormatTextUTF8, "text/*"}, spec.Accept)
	assert.True(t, spec.Actions.Has(dnd.Copy))
	assert.Equal(t, dnd.Move, spec.Prefer)

	_, err = filterSpecFlags([]string{"text/plain"}, "", "")
	assert.ErrorIs(t, err, dnd.ErrInvalidActionSet)

	_, err = filterSpecFlags([]string{"UTF8_STRING"}, "copy", "")
	assert.ErrorIs(t, err, payload.ErrInvalidFormat)
}

func virtualViper(display string) *viper.Viper {
	v := viper.New()
	v.Set("backend", backendVirtual)
	v.Set("display", display)
	return v
}

func TestFakeInputVirtual(t *testing.T) {
	v := virtualViper(":65")
	require.NoError(t, fakeInput(v, inject.Event{Op: inject.KeyPress, Code: 36}))

	err := fakeInput(v, inject.Event{Op: inject.KeyRelease, Code: 3})
	var ie *inject.InputInjectionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "BadValue", ie.Errors[0].Name)
}

func TestOpenBackendUnknown(t *testing.T) {
	v := virtualViper(":0")
	v.Set("backend", "wayland")
	_, err := openBackend(v, true)
	assert.ErrorContains(t, err, "unknown backend")
}

func TestPrintStatus(t *testing.T) {
	h := harness.New("clipboard-source", selection.NewBoard(), harness.WithDisplay("virtual", ":1"))
	set, err := clipboardSet(defaultClipboardHTML, defaultClipboardPaths, "")
	require.NoError(t, err)
	_, err = h.Acquire(selection.Clipboard, set)
	require.NoError(t, err)

	st := h.Status()
	var buf bytes.Buffer
	printStatus(&buf, &st)
	out := buf.String()
	assert.Contains(t, out, "clipboard-source")
	assert.Contains(t, out, "text/html, text/uri-list, text/plain;charset=utf-8")
	assert.Contains(t, out, "primary-selection")
}

type stubClipboard struct{ data []byte }

func (s stubClipboard) Name() string                                         { return "stub" }
func (s stubClipboard) Read(payload.Format) ([]byte, error)                  { return s.data, nil }
func (s stubClipboard) Wait(context.Context, payload.Format) ([]byte, error) { return s.data, nil }
func (s stubClipboard) Close()                                               {}

func TestReadClipboard(t *testing.T) {
	require.NoError(t, readClipboard(t.Context(), stubClipboard{data: []byte("x")}, payload.FormatTextPlain, true))
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{
		"clipboard-source", "primary-selection-source", "drag-source", "drag-target",
		"fake-input", "read-clipboard", "status", "formats", "resolve", "release",
		"negotiate", "drop", "cancel", "begin", "offer", "version",
	} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestServeScenarioReady(t *testing.T) {
	v := virtualViper(":7")
	socket := filepath.Join(t.TempDir(), "tk.sock")
	v.Set("socket", socket)

	ctx, cancel := context.WithCancel(t.Context())
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- serveScenario(ctx, v, pw, "clipboard-source", func(h *harness.Harness) error {
			set, err := clipboardSet(defaultClipboardHTML, defaultClipboardPaths, "")
			if err != nil {
				return err
			}
			_, err = h.Acquire(selection.Clipboard, set)
			return err
		})
		_ = pw.Close()
	}()

	line, err := bufio.NewReader(pr).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ready\n", line)

	c, err := control.Dial(socket)
	require.NoError(t, err)
	defer c.Close()
	resp, err := c.Call(t.Context(), &message.Request{Op: message.OpFormats, Channel: "clipboard"})
	require.NoError(t, err)
	assert.Equal(t, []string{"text/html", "text/uri-list", "text/plain;charset=utf-8"}, resp.Formats)

	lv := viper.New()
	lv.Set("socket", socket)
	lv.Set("timeout", time.Second)
	lv.Set("line", true)
	resp, err = call(lv, &message.Request{Op: message.OpResolve, Channel: "clipboard", Format: "text/uri-list"})
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, printPaths(&out, resp))
	assert.Equal(t, strings.Join(defaultClipboardPaths, "\n")+"\n", out.String())

	_, err = call(lv, &message.Request{Op: message.OpResolve, Channel: "clipboard", Format: "image/png"})
	assert.ErrorIs(t, err, payload.ErrUnsupportedFormat)

	cancel()
	assert.NoError(t, <-done)
}

func TestServeScenarioSetupFailure(t *testing.T) {
	v := virtualViper(":8")
	v.Set("socket", filepath.Join(t.TempDir(), "tk.sock"))
	var out bytes.Buffer
	err := serveScenario(t.Context(), v, &out, "drag-source", func(*harness.Harness) error {
		_, err := dnd.NewActions()
		return err
	})
	assert.ErrorIs(t, err, dnd.ErrInvalidActionSet)
	assert.Empty(t, out.String())
}
