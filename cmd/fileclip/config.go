package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/fileclip/internal/logging"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and FILECLIP_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → FILECLIP_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("fileclip")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/fileclip/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/fileclip", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	// container-workspace → FILECLIP_CONTAINER_WORKSPACE
	v.SetEnvPrefix("FILECLIP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command, defaultLevel string) {
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", defaultLevel, "log level: debug|info|warn|error")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addWorkspaceFlags adds the workspace and mailbox location flags.
func addWorkspaceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("container-workspace", "", "workspace root as seen inside the container")
	f.String("host-workspace", "", "the same workspace root as seen on the host")
	f.String("mailbox-dir", "", "mailbox directory (default: <workspace>/.fileclip)")
}

// newLogger builds the command logger from the logging flags. file may be
// empty for console-only output.
func newLogger(cmd *cobra.Command, v *viper.Viper, file string) (*slog.Logger, func(), error) {
	log, closer, err := logging.New(logging.Options{
		Format:  logging.ParseFormat(v.GetString("log-format")),
		Level:   logging.ParseLevel(v.GetString("log-level")),
		Console: cmd.ErrOrStderr(),
		File:    file,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	return log, func() { _ = closer.Close() }, nil
}
