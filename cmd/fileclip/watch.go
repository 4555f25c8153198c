package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/fileclip/internal/watcher"
)

// watcherLogName is the default log file inside the mailbox.
const watcherLogName = "fileclip_watcher.log"

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Serve clipboard requests from containers (run on the host)",
		Long: `Watches <host-workspace>/.fileclip for requests written by "fileclip
--use-watcher" inside a container and places the requested files on this
host's clipboard. Requests already waiting at startup are processed first.

Logs go to stderr and to a rotating file, <mailbox>/fileclip_watcher.log by
default. Pass --log-file - to disable the file.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runWatch(cmd, v) },
	}

	f := cmd.Flags()
	f.String("poll-interval", "1s", "rescan interval in case change notifications are missed")
	f.String("clipboard-timeout", "5s", "timeout for each clipboard utility call")
	f.Bool("uri-text", false, "copy file:// URIs as plain text instead of file references")
	f.String("log-file", "", "log file path (default: <mailbox>/fileclip_watcher.log, - to disable)")
	addWorkspaceFlags(cmd)
	addLoggingFlags(cmd, "info")
	addConfigFlag(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	dir, err := mailboxDir(v, "host-workspace")
	if err != nil {
		return err
	}
	logFile := v.GetString("log-file")
	switch logFile {
	case "":
		logFile = filepath.Join(dir, watcherLogName)
	case "-":
		logFile = ""
	}

	log, closeLog, err := newLogger(cmd, v, logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	cw, err := newClipWriter(v, log)
	if err != nil {
		return err
	}
	w := watcher.New(dir, cw, log)
	if w.PollInterval, err = durationValue(v, "poll-interval"); err != nil {
		return err
	}
	return w.Run(cmd.Context())
}
