// Package logging configures the global slog logger for tkharness. Logs always
// go to standard error: standard output belongs to the ready line and to
// payload bytes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Options is the resolved logging configuration of one process.
type Options struct {
	Format Format
	Level  slog.Level
	// Interactive means a human is watching: an unset level becomes debug.
	Interactive bool
}

// Resolve builds Options from raw flag values. An empty level means debug
// when interactive, info otherwise.
func Resolve(interactive bool, format, level string) Options {
	o := Options{Format: ParseFormat(format), Level: ParseLevel(level), Interactive: interactive}
	if level == "" && interactive {
		o.Level = slog.LevelDebug
	}
	return o
}

// NewHandler returns the handler Options select for w: tinter when the
// format is text, or auto on a terminal; JSON otherwise.
func NewHandler(w io.Writer, o Options) slog.Handler {
	if o.Format == FormatText || (o.Format == FormatAuto && IsTTY(w)) {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      o.Level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: o.Level})
}

// Setup configures the global slog logger on standard error. Call once after
// flag/viper parsing.
func Setup(o Options) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, o)))
}
