package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/inject"
)

func newFakeInputCmd() *cobra.Command {
	cmd := newCommand("fake-input",
		"Inject one synthetic key event and wait for the server's verdict",
		func(v *viper.Viper, _ []string) error {
			op, err := inject.ParseOperation(v.GetString("operation"))
			if err != nil {
				return err
			}
			return fakeInput(v, inject.Event{Op: op, Code: v.GetInt("value")})
		})
	cmd.Long = `Sends one XTEST key event to the display, then round-trips with the
server so every protocol error the event caused is known before exiting.
Exits 0 when the server accepted the event and 1 with every protocol error
on stderr when it did not.`
	f := cmd.Flags()
	f.String("operation", "", "KeyPress or KeyRelease")
	f.Int("value", 0, "key code")
	addDisplayFlags(cmd)
	return cmd
}

func fakeInput(v *viper.Viper, ev inject.Event) error {
	be, err := openBackend(v, false)
	if err != nil {
		return err
	}
	defer be.close()

	in := inject.New(be.dial)
	defer in.Close()

	err = in.Inject(be.display, ev)
	var ie *inject.InputInjectionError
	if errors.As(err, &ie) {
		for _, pe := range ie.Errors {
			fmt.Fprintln(os.Stderr, pe.Error())
		}
		return err
	}
	if err != nil {
		return err
	}
	slog.Info("key event accepted", "event", ev.String(), "display", be.display)
	return nil
}
