package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/fileclip/internal/fileset"
	"go.klb.dev/fileclip/internal/requester"
)

var (
	errNoFiles  = errors.New("no files specified or found in provided paths")
	errHeadless = errors.New("no display available; file URIs printed to stdout")
)

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "fileclip [paths...]",
		Short: "Copy files to the host clipboard as file references",
		Long: `Places the given files on the clipboard so they can be pasted into a file
manager or application. Directories are expanded recursively.

Inside a dev container with --use-watcher, the request is handed to a
"fileclip watch" process running on the host through the shared
<workspace>/.fileclip mailbox. If no watcher answers, the local clipboard is
used instead.

Config file search order (first found wins):
  /etc/fileclip/fileclip.toml
  $HOME/.config/fileclip/fileclip.toml
  path supplied via --config

All flags can be set via FILECLIP_<FLAG> env vars (dashes become underscores)
or config-file keys.`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		PreRunE:      func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:         func(cmd *cobra.Command, args []string) error { return runCopy(cmd, v, args) },
	}

	f := cmd.Flags()
	f.StringArray("dir", nil, "directory to copy all files from, recursively (repeatable)")
	f.Bool("use-watcher", false, "hand the copy to the host watcher when inside a container")
	f.Bool("no-watcher", false, "always write the local clipboard directly")
	f.String("watcher-timeout", "10s", "how long to wait for the watcher's result")
	f.String("probe-timeout", "2s", "how long to wait for the watcher to answer a ping")
	f.String("clipboard-timeout", "5s", "timeout for each clipboard utility call")
	f.Bool("uri-text", false, "copy file:// URIs as plain text instead of file references")
	f.String("sender", requester.DefaultSender(), "sender id written into requests")
	addWorkspaceFlags(cmd)
	addLoggingFlags(cmd, "warn")
	addConfigFlag(cmd)

	return cmd
}

func runCopy(cmd *cobra.Command, v *viper.Viper, args []string) error {
	dirs, _ := cmd.Flags().GetStringArray("dir")
	inputs := append(append([]string{}, args...), dirs...)
	if len(inputs) == 0 {
		return errNoFiles
	}
	files, err := fileset.Expand(inputs)
	if err != nil {
		var pnf *fileset.PathNotFoundError
		if errors.As(err, &pnf) {
			return fmt.Errorf("path %s does not exist", pnf.Path)
		}
		return err
	}
	if len(files) == 0 {
		return errNoFiles
	}

	log, closeLog, err := newLogger(cmd, v, "")
	if err != nil {
		return err
	}
	defer closeLog()

	cfg := requester.Config{
		ContainerRoot: v.GetString("container-workspace"),
		HostRoot:      v.GetString("host-workspace"),
		MailboxDir:    v.GetString("mailbox-dir"),
		Sender:        v.GetString("sender"),
	}
	if cfg.ResultTimeout, err = durationValue(v, "watcher-timeout"); err != nil {
		return err
	}
	if cfg.ProbeTimeout, err = durationValue(v, "probe-timeout"); err != nil {
		return err
	}

	w, err := newClipWriter(v, log)
	if err != nil {
		return err
	}
	useWatcher := v.GetBool("use-watcher") && !v.GetBool("no-watcher")

	rep, err := requester.New(cfg, w, log).CopyFiles(cmd.Context(), files, useWatcher)
	if err != nil {
		return fmt.Errorf("failed to copy files: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, d := range rep.Diagnostics {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", d)
	}
	if !rep.Copied {
		for _, u := range rep.URIs {
			fmt.Fprintln(out, u)
		}
		return errHeadless
	}

	via := rep.Backend
	if rep.Route == requester.RouteWatcher {
		via = "host watcher"
	}
	fmt.Fprintf(out, "Copied %d file(s) to the clipboard via %s.\n", len(files), via)
	fmt.Fprintln(out, "Paste into your application with Ctrl+V (or Cmd+V on macOS).")
	return nil
}
