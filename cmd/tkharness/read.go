package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/clip"
	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/payload"
)

func newReadClipboardCmd() *cobra.Command {
	cmd := newCommand("read-clipboard",
		"Write the system clipboard to stdout",
		func(v *viper.Viper, _ []string) error {
			f, err := payload.ParseFormat(v.GetString("mime"))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return readClipboard(ctx, clip.New(), f, v.GetBool("wait"))
		})
	cmd.Long = `Reads the system clipboard the way a consumer application would and
writes the raw bytes to stdout. Only text/plain and image/png can be read.`
	f := cmd.Flags()
	f.String("mime", string(payload.FormatTextPlain), "format to read: text/plain or image/png")
	f.Bool("wait", false, "block until the clipboard holds content in that format")
	return cmd
}

func readClipboard(ctx context.Context, b clip.Backend, f payload.Format, wait bool) error {
	defer b.Close()
	var (
		data []byte
		err  error
	)
	if wait {
		data, err = b.Wait(ctx, f)
	} else {
		data, err = b.Read(f)
	}
	if err != nil {
		return err
	}
	harness.LogData("clipboard read", f, data)
	_, err = os.Stdout.Write(data)
	return err
}
