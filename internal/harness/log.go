package harness

import (
	"context"
	"log/slog"

	"go.klb.dev/tkharness/internal/payload"
)

const previewLimit = 120

// LogFormats logs a payload event at INFO with its formats in producer order.
func LogFormats(event string, formats []payload.Format, args ...any) {
	types := make([]string, len(formats))
	for i, f := range formats {
		types[i] = f.String()
	}
	slog.Info(event, append(args, "formats", types)...)
}

// LogData logs resolved bytes at DEBUG: a text preview of up to 120 chars,
// or the byte size for anything that is not text.
func LogData(event string, f payload.Format, data []byte) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if f.IsText() {
		slog.Debug(event, "format", f.String(), "preview", preview(data))
		return
	}
	slog.Debug(event, "format", f.String(), "size_bytes", len(data))
}

func preview(data []byte) string {
	r := []rune(string(data))
	if len(r) > previewLimit {
		return string(r[:previewLimit]) + "…"
	}
	return string(r)
}
