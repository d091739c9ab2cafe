package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/dnd"
	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/payload"
)

const defaultDragText = "Text from TestAppDragSource"

func newDragSourceCmd() *cobra.Command {
	cmd := newCommand("drag-source",
		"Arm a drag session offering plain text",
		func(v *viper.Viper, _ []string) error {
			text := v.GetString("text")
			set, err := payload.Build(
				payload.Text(payload.FormatTextUTF8, text),
				payload.Text(payload.FormatTextPlain, text),
			)
			if err != nil {
				return err
			}
			allowed, err := dnd.ParseActions(v.GetString("actions"))
			if err != nil {
				return err
			}
			return runScenario(v, "drag-source", func(h *harness.Harness) error {
				_, err := h.BeginDrag(set, allowed)
				return err
			})
		})
	cmd.Long = `Begins a drag session offering text/plain;charset=utf-8 then text/plain.
Peers negotiate, drop or cancel it over the control socket; "tkharness begin"
re-arms a finished session with the same content.`
	f := cmd.Flags()
	f.String("text", defaultDragText, "dragged text")
	f.String("actions", "copy|move", "allowed actions")
	addDisplayFlags(cmd)
	addSocketFlag(cmd)
	return cmd
}

func newDragTargetCmd() *cobra.Command {
	cmd := newCommand("drag-target",
		"Register a drop filter accepting plain text",
		func(v *viper.Viper, _ []string) error {
			spec, err := filterSpecFlags(v.GetStringSlice("accept"), v.GetString("actions"), v.GetString("prefer"))
			if err != nil {
				return err
			}
			return runScenario(v, "drag-target", func(h *harness.Harness) error {
				_, err := h.RegisterDropFilter(spec)
				return err
			})
		})
	cmd.Long = `Registers a drop filter. Peers offer hypothetical drags to it with
"tkharness offer". Accepted entries may be media ranges such as text/*.`
	f := cmd.Flags()
	f.StringSlice("accept", []string{string(payload.FormatTextUTF8), string(payload.FormatTextPlain)}, "accepted formats, in preference order")
	f.String("actions", "copy", "supported actions")
	f.String("prefer", "", "preferred action")
	addDisplayFlags(cmd)
	addSocketFlag(cmd)
	return cmd
}

// filterSpecFlags parses drop filter flag values.
func filterSpecFlags(accept []string, actions, prefer string) (harness.FilterSpec, error) {
	var spec harness.FilterSpec
	for _, s := range accept {
		f, err := payload.ParseFormat(s)
		if err != nil {
			return spec, err
		}
		spec.Accept = append(spec.Accept, f)
	}
	var err error
	if spec.Actions, err = dnd.ParseActions(actions); err != nil {
		return spec, err
	}
	if prefer != "" {
		if spec.Prefer, err = dnd.ParseAction(prefer); err != nil {
			return spec, err
		}
	}
	return spec, nil
}
