package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/fileclip/internal/requester"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether a watcher is serving the mailbox",
		Long: `Sends a ping through the mailbox and reports whether a watcher consumed it
within --probe-timeout. Exits non-zero when no watcher answered.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}

	f := cmd.Flags()
	f.String("probe-timeout", "2s", "how long to wait for the watcher to answer")
	f.String("sender", requester.DefaultSender(), "sender id written into the ping")
	addWorkspaceFlags(cmd)
	addLoggingFlags(cmd, "warn")
	addConfigFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	dir, err := mailboxDir(v, "container-workspace", "host-workspace")
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cmd, v, "")
	if err != nil {
		return err
	}
	defer closeLog()

	cfg := requester.Config{MailboxDir: dir, Sender: v.GetString("sender")}
	if cfg.ProbeTimeout, err = durationValue(v, "probe-timeout"); err != nil {
		return err
	}

	r := requester.New(cfg, nil, log)
	alive, err := r.Ping(cmd.Context())
	if !alive {
		return fmt.Errorf("no watcher is serving %s: %w", dir, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "watcher is running (mailbox: %s)\n", dir)
	return nil
}
