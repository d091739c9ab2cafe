package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/payload"
	"go.klb.dev/tkharness/internal/selection"
)

// Default content of the selection scenarios. The paths exercise spaces,
// shell metacharacters, non-ASCII text and brackets in text/uri-list.
const (
	defaultClipboardHTML = "<p>Text from <b>TestAppClipboardSource</b></p>"
	defaultPrimaryHTML   = "<p>Text from <b>TestAppPrimarySelectionSource</b></p>"
	defaultPrimaryText   = "Text from TestAppPrimarySelectionSource"
)

var defaultClipboardPaths = []string{
	"/some/path/With Spaces/& $p€¢ïåł çħāřß",
	"/tmp/[Screenshot from 12:04:42].png",
}

func newClipboardSourceCmd() *cobra.Command {
	cmd := newCommand("clipboard-source",
		"Own the clipboard with HTML, a file list and plain text",
		func(v *viper.Viper, _ []string) error {
			set, err := clipboardSet(v.GetString("html"), v.GetStringSlice("path"), v.GetString("text"))
			if err != nil {
				return err
			}
			return runScenario(v, "clipboard-source", func(h *harness.Harness) error {
				_, err := h.Acquire(selection.Clipboard, set)
				return err
			})
		})
	cmd.Long = `Acquires the clipboard with three formats, in this order:

  text/html                 the --html snippet
  text/uri-list             file URIs of the --path values
  text/plain;charset=utf-8  the --path values one per line, or --text

prints "ready" and serves the content until interrupted.`
	f := cmd.Flags()
	f.String("html", defaultClipboardHTML, "text/html content")
	f.StringSlice("path", defaultClipboardPaths, "file paths for text/uri-list (repeatable)")
	f.String("text", "", "text/plain content (default: the paths, one per line)")
	addDisplayFlags(cmd)
	addSocketFlag(cmd)
	return cmd
}

// clipboardSet builds the clipboard-source payload.
func clipboardSet(html string, paths []string, text string) (*payload.Set, error) {
	if text == "" {
		text = strings.Join(paths, "\n")
	}
	return payload.Build(
		payload.Text(payload.FormatHTML, html),
		payload.Bytes(payload.FormatURIList, payload.URIList(paths...)),
		payload.Text(payload.FormatTextUTF8, text),
	)
}

func newPrimarySelectionSourceCmd() *cobra.Command {
	cmd := newCommand("primary-selection-source",
		"Own the primary selection with HTML and plain text",
		func(v *viper.Viper, _ []string) error {
			set, err := payload.Build(
				payload.Text(payload.FormatHTML, v.GetString("html")),
				payload.Text(payload.FormatTextUTF8, v.GetString("text")),
			)
			if err != nil {
				return err
			}
			return runScenario(v, "primary-selection-source", func(h *harness.Harness) error {
				_, err := h.Acquire(selection.Primary, set)
				return err
			})
		})
	f := cmd.Flags()
	f.String("html", defaultPrimaryHTML, "text/html content")
	f.String("text", defaultPrimaryText, "text/plain;charset=utf-8 content")
	addDisplayFlags(cmd)
	addSocketFlag(cmd)
	return cmd
}
