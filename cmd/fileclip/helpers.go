package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.klb.dev/fileclip/internal/clip"
	"go.klb.dev/fileclip/internal/requester"
)

// durationValue reads a duration key. A bare number is taken as seconds.
func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", key, err)
	}
	return d, nil
}

// newClipWriter returns the clipboard writer selected by --uri-text and
// --clipboard-timeout.
func newClipWriter(v *viper.Viper, log *slog.Logger) (clip.Writer, error) {
	if v.GetBool("uri-text") {
		return clip.NewURITextWriter(), nil
	}
	timeout, err := durationValue(v, "clipboard-timeout")
	if err != nil {
		return nil, err
	}
	return clip.New(clip.Options{Timeout: timeout, Logger: log})
}

// mailboxDir returns --mailbox-dir, or the mailbox under the first non-empty
// workspace key.
func mailboxDir(v *viper.Viper, workspaceKeys ...string) (string, error) {
	if dir := v.GetString("mailbox-dir"); dir != "" {
		return filepath.Abs(dir)
	}
	for _, k := range workspaceKeys {
		if root := v.GetString(k); root != "" {
			return filepath.Join(root, requester.MailboxDirName), nil
		}
	}
	flags := make([]string, len(workspaceKeys))
	for i, k := range workspaceKeys {
		flags[i] = "--" + k
	}
	return "", fmt.Errorf("mailbox location unknown: set --mailbox-dir or %s", strings.Join(flags, " / "))
}
