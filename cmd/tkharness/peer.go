package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/control"
	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/message"
	"go.klb.dev/tkharness/internal/payload"
)

// newPeerCommand builds a command that sends one request to a running
// scenario. build fills the request from the command's viper.
func newPeerCommand(use, short string, op message.Op, build func(v *viper.Viper, req *message.Request), show func(w io.Writer, resp *message.Response) error) *cobra.Command {
	cmd := newCommand(use, short, func(v *viper.Viper, _ []string) error {
		req := &message.Request{Op: op}
		if build != nil {
			build(v, req)
		}
		resp, err := call(v, req)
		if err != nil {
			return err
		}
		if v.GetBool("json") {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		return show(os.Stdout, resp)
	})
	f := cmd.Flags()
	addSocketFlag(cmd)
	f.Bool("json", false, "output the raw JSON response")
	f.Duration("timeout", 5*time.Second, "request timeout")
	f.Bool("line", false, "use the line JSON protocol instead of gRPC")
	return cmd
}

type caller interface {
	Call(ctx context.Context, req *message.Request) (*message.Response, error)
	Close() error
}

func call(v *viper.Viper, req *message.Request) (*message.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("timeout"))
	defer cancel()

	var (
		c   caller
		err error
	)
	if v.GetBool("line") {
		c, err = control.DialLine(ctx, v.GetString("socket"))
	} else {
		c, err = control.Dial(v.GetString("socket"))
	}
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Call(ctx, req)
}

func addChannelFlag(cmd *cobra.Command) {
	cmd.Flags().String("channel", "clipboard", "selection channel: clipboard|primary-selection")
}

func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("accept", nil, "accepted formats (default: the registered drop filter)")
	f.String("actions", "", "supported actions, e.g. copy|move")
	f.String("prefer", "", "preferred action")
}

func buildFilter(v *viper.Viper, req *message.Request) {
	req.Accept = v.GetStringSlice("accept")
	req.Actions = v.GetString("actions")
	req.Prefer = v.GetString("prefer")
}

func newStatusCmd() *cobra.Command {
	return newPeerCommand("status", "Show what a running scenario exposes", message.OpStatus, nil,
		func(w io.Writer, resp *message.Response) error {
			if resp.Status == nil {
				return fmt.Errorf("status: empty response")
			}
			printStatus(w, resp.Status)
			return nil
		})
}

func printStatus(out io.Writer, st *harness.Status) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Scenario:\t%s\n", st.Scenario)
	if st.Backend != "" {
		fmt.Fprintf(w, "Backend:\t%s (%s)\n", st.Backend, st.Display)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "CHANNEL\tOWNER\tFORMATS\n")
	fmt.Fprintf(w, "-------\t-----\t-------\n")
	for _, ch := range st.Channels {
		owner := "-"
		if ch.Owned {
			owner = fmt.Sprintf("#%d", ch.Serial)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", ch.Channel, owner, joinFormats(ch.Formats))
	}
	if d := st.Drag; d != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Drag:\t%s\n", d.State)
		fmt.Fprintf(w, "Offered:\t%s\n", joinFormats(d.Offered))
		fmt.Fprintf(w, "Allowed:\t%s\n", d.Allowed)
		if d.Format != "" {
			fmt.Fprintf(w, "Transferred:\t%s %s\n", d.Format, d.Action)
		}
	}
	if f := st.Filter; f != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Drop filter:\t%s\n", joinFormats(f.Accept))
		fmt.Fprintf(w, "Supported:\t%s\n", f.Supported)
		if f.Prefer != "" {
			fmt.Fprintf(w, "Prefer:\t%s\n", f.Prefer)
		}
	}
	_ = w.Flush()
}

func joinFormats[F ~string](formats []F) string {
	if len(formats) == 0 {
		return "-"
	}
	ss := make([]string, len(formats))
	for i, f := range formats {
		ss[i] = string(f)
	}
	return strings.Join(ss, ", ")
}

func printFormats(w io.Writer, resp *message.Response) error {
	for _, f := range resp.Formats {
		fmt.Fprintln(w, f)
	}
	return nil
}

func printOutcome(w io.Writer, resp *message.Response) error {
	fmt.Fprintf(w, "%s %s\n", resp.Format, resp.Action)
	return nil
}

func printData(w io.Writer, resp *message.Response) error {
	data, err := resp.DecodeData()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func printState(w io.Writer, resp *message.Response) error {
	fmt.Fprintln(w, resp.State)
	return nil
}

func newFormatsCmd() *cobra.Command {
	cmd := newPeerCommand("formats", "List the formats a selection channel offers", message.OpFormats,
		func(v *viper.Viper, req *message.Request) { req.Channel = v.GetString("channel") },
		printFormats)
	addChannelFlag(cmd)
	return cmd
}

func newResolveCmd() *cobra.Command {
	var paths bool
	cmd := newPeerCommand("resolve", "Write one format of a selection channel to stdout", message.OpResolve,
		func(v *viper.Viper, req *message.Request) {
			req.Channel = v.GetString("channel")
			req.Format = v.GetString("format")
			paths = v.GetBool("paths")
		},
		func(w io.Writer, resp *message.Response) error {
			if paths {
				return printPaths(w, resp)
			}
			return printData(w, resp)
		})
	addChannelFlag(cmd)
	cmd.Flags().String("format", "text/plain;charset=utf-8", "format to resolve")
	cmd.Flags().Bool("paths", false, "decode a text/uri-list payload into one path per line")
	return cmd
}

// printPaths writes the file paths of a text/uri-list payload.
func printPaths(w io.Writer, resp *message.Response) error {
	data, err := resp.DecodeData()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	paths, err := payload.ParseURIList(data)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	return nil
}

func newReleaseCmd() *cobra.Command {
	cmd := newPeerCommand("release", "Make a selection channel ownerless", message.OpRelease,
		func(v *viper.Viper, req *message.Request) { req.Channel = v.GetString("channel") },
		func(w io.Writer, resp *message.Response) error {
			if resp.Owned {
				fmt.Fprintln(w, "released")
			} else {
				fmt.Fprintln(w, "not owned")
			}
			return nil
		})
	addChannelFlag(cmd)
	return cmd
}

func newNegotiateCmd() *cobra.Command {
	cmd := newPeerCommand("negotiate", "Preview a drop on the current drag session", message.OpNegotiate,
		buildFilter, printOutcome)
	addFilterFlags(cmd)
	return cmd
}

func newDropCmd() *cobra.Command {
	cmd := newPeerCommand("drop", "Drop the current drag session and print the transferred bytes", message.OpDrop,
		buildFilter, printData)
	addFilterFlags(cmd)
	return cmd
}

func newCancelCmd() *cobra.Command {
	return newPeerCommand("cancel", "Cancel the current drag session", message.OpCancel, nil, printState)
}

func newBeginCmd() *cobra.Command {
	return newPeerCommand("begin", "Re-arm a finished drag session", message.OpBegin, nil, printState)
}

func newOfferCmd() *cobra.Command {
	cmd := newPeerCommand("offer", "Offer a hypothetical drag to the registered drop filter", message.OpOffer,
		func(v *viper.Viper, req *message.Request) {
			req.Offered = v.GetStringSlice("format")
			req.Actions = v.GetString("actions")
		},
		printOutcome)
	cmd.Flags().StringSlice("format", nil, "offered formats, in producer order (repeatable)")
	cmd.Flags().String("actions", "copy", "allowed actions")
	return cmd
}
