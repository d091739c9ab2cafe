// tkharness: scriptable counterpart processes for desktop toolkit integration
// tests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tkharness",
		Short: "Counterpart processes for toolkit clipboard, drag-and-drop and input tests",
		Long: `tkharness plays the other side of a desktop toolkit's platform integration
tests. Scenario commands own the clipboard or primary selection, arm a drag
session, register a drop target, or inject key events against a real X
display (or an in-process virtual one with --backend virtual). Each scenario
prints "ready" on stdout once set up and runs until interrupted.

Peer commands (status, formats, resolve, negotiate, drop, ...) talk to a
running scenario over its control socket.

Config file search order (first found wins):
  /etc/tkharness/tkharness.toml
  $HOME/.config/tkharness/tkharness.toml
  path supplied via --config

All flags can be set via TKHARNESS_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddGroup(
		&cobra.Group{ID: "scenario", Title: "Scenarios:"},
		&cobra.Group{ID: "peer", Title: "Peer commands:"},
	)
	for _, c := range []*cobra.Command{
		newClipboardSourceCmd(),
		newPrimarySelectionSourceCmd(),
		newDragSourceCmd(),
		newDragTargetCmd(),
		newFakeInputCmd(),
		newReadClipboardCmd(),
	} {
		c.GroupID = "scenario"
		root.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		newStatusCmd(),
		newFormatsCmd(),
		newResolveCmd(),
		newReleaseCmd(),
		newNegotiateCmd(),
		newDropCmd(),
		newCancelCmd(),
		newBeginCmd(),
		newOfferCmd(),
	} {
		c.GroupID = "peer"
		root.AddCommand(c)
	}
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("tkharness %s\n", Version)
		},
	}
}
