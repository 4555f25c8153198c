package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/fileclip/internal/clip"
	"go.klb.dev/fileclip/internal/watcher"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fileclip dev\n", out)
}

func TestCopyNoFiles(t *testing.T) {
	_, err := execute(t)
	assert.ErrorIs(t, err, errNoFiles)

	_, err = execute(t, "--dir", t.TempDir())
	assert.ErrorIs(t, err, errNoFiles)
}

func TestCopyMissingPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nonexistent.txt")
	_, err := execute(t, missing)
	require.Error(t, err)
	assert.Equal(t, "path "+missing+" does not exist", err.Error())
}

func TestDurationValue(t *testing.T) {
	v := viper.New()
	v.Set("a", "10")
	v.Set("b", "1.5")
	v.Set("c", "250ms")
	v.Set("d", "soon")

	d, err := durationValue(v, "a")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	d, err = durationValue(v, "b")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = durationValue(v, "c")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = durationValue(v, "d")
	assert.ErrorContains(t, err, "--d")

	d, err = durationValue(v, "unset")
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestMailboxDir(t *testing.T) {
	v := viper.New()
	_, err := mailboxDir(v, "host-workspace")
	assert.ErrorContains(t, err, "--host-workspace")

	v.Set("host-workspace", "/ws")
	dir, err := mailboxDir(v, "container-workspace", "host-workspace")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/ws", ".fileclip"), dir)

	v.Set("container-workspace", "/workspace")
	dir, err = mailboxDir(v, "container-workspace", "host-workspace")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/workspace", ".fileclip"), dir)

	abs := t.TempDir()
	v.Set("mailbox-dir", abs)
	dir, err = mailboxDir(v, "host-workspace")
	require.NoError(t, err)
	assert.Equal(t, abs, dir)
}

func TestWorkspaceFromEnv(t *testing.T) {
	t.Setenv("FILECLIP_HOST_WORKSPACE", "/from/env")
	cmd := newWatchCmd()
	v := viper.New()
	require.NoError(t, bindViper(cmd, v))

	dir, err := mailboxDir(v, "host-workspace")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/from/env", ".fileclip"), dir)
}

type nopWriter struct{}

func (nopWriter) Name() string { return "nop" }

func (nopWriter) WriteFiles(context.Context, []string) (clip.Outcome, error) {
	return clip.Outcome{Copied: true, Backend: "nop"}, nil
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "status", "--mailbox-dir", dir, "--probe-timeout", "200ms")
	assert.ErrorContains(t, err, "no watcher is serving")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := watcher.New(dir, nopWriter{}, nil)
	w.PollInterval = 20 * time.Millisecond
	go func() { _ = w.Run(ctx) }()

	out, err := execute(t, "status", "--mailbox-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "watcher is running")
}
