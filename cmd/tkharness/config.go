package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/tkharness/internal/ipc"
	"go.klb.dev/tkharness/internal/logging"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and TKHARNESS_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → TKHARNESS_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("tkharness")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/tkharness/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/tkharness", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("TKHARNESS")
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info, debug with --no-background)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addDisplayFlags adds the flags every command that touches a display uses.
func addDisplayFlags(cmd *cobra.Command) {
	cmd.Flags().String("display", os.Getenv("DISPLAY"), "X display to connect to")
	cmd.Flags().String("backend", backendX11, "display backend: x11|virtual")
}

// addSocketFlag adds the control socket flag.
func addSocketFlag(cmd *cobra.Command) {
	cmd.Flags().String("socket", ipc.SocketPath(), "control socket path")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	logging.Setup(logging.Resolve(v.GetBool("no-background"), v.GetString("log-format"), v.GetString("log-level")))
}

// newCommand builds a command with its own viper instance bound before run.
func newCommand(use, short string, run func(v *viper.Viper, args []string) error) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			setupLogging(v)
			return run(v, args)
		},
	}
	addLoggingFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}
