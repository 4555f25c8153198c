package watcher_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/fileclip/internal/clip"
	"go.klb.dev/fileclip/internal/mailbox"
	"go.klb.dev/fileclip/internal/requester"
	"go.klb.dev/fileclip/internal/watcher"
)

type recorder struct {
	name  string
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) WriteFiles(_ context.Context, paths []string) (clip.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), paths...))
	if r.err != nil {
		return clip.Outcome{}, r.err
	}
	return clip.Outcome{Copied: true, Backend: r.name}, nil
}

func (r *recorder) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type endToEnd struct {
	root  string
	files []string
	host  *recorder
	local *recorder
	req   *requester.Requester
}

// startEndToEnd runs a real watcher and a requester over one shared
// workspace, so container and host roots are the same directory.
func startEndToEnd(t *testing.T, hostErr error) *endToEnd {
	t.Helper()
	root := t.TempDir()
	var files []string
	for _, n := range []string{"a.txt", filepath.Join("sub", "b.txt")} {
		p := filepath.Join(root, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
		files = append(files, p)
	}

	host := &recorder{name: "host", err: hostErr}
	w := watcher.New(filepath.Join(root, requester.MailboxDirName), host, nil)
	w.PollInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	local := &recorder{name: "local"}
	req := requester.New(requester.Config{
		ContainerRoot: root,
		HostRoot:      root,
		Sender:        "container_pid_7",
		ProbeTimeout:  2 * time.Second,
		ResultTimeout: 2 * time.Second,
		PollInterval:  10 * time.Millisecond,
		Sandboxed:     func() bool { return true },
	}, local, nil)
	return &endToEnd{root: root, files: files, host: host, local: local, req: req}
}

func (e *endToEnd) mailboxEmpty(t *testing.T) bool {
	t.Helper()
	entries, err := os.ReadDir(e.req.MailboxDir())
	require.NoError(t, err)
	for _, ent := range entries {
		if mailbox.IsRequestName(ent.Name()) || mailbox.IsResultName(ent.Name()) {
			return false
		}
	}
	return true
}

func TestRequesterThroughWatcher(t *testing.T) {
	e := startEndToEnd(t, nil)

	rep, err := e.req.CopyFiles(context.Background(), e.files, true)
	require.NoError(t, err)
	assert.True(t, rep.Copied)
	assert.Equal(t, requester.RouteWatcher, rep.Route)
	assert.Equal(t, "Copied 2 file(s)", rep.Message)
	assert.Empty(t, rep.Diagnostics)

	assert.Equal(t, [][]string{e.files}, e.host.Calls())
	assert.Empty(t, e.local.Calls())
	require.Eventually(t, func() bool { return e.mailboxEmpty(t) }, 2*time.Second, 10*time.Millisecond)
}

func TestRequesterPingsWatcher(t *testing.T) {
	e := startEndToEnd(t, nil)

	alive, err := e.req.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, alive)
	require.Eventually(t, func() bool { return e.mailboxEmpty(t) }, 2*time.Second, 10*time.Millisecond)
}

func TestRequesterFallsBackWhenWatcherFails(t *testing.T) {
	e := startEndToEnd(t, errors.New("xclip exploded"))

	rep, err := e.req.CopyFiles(context.Background(), e.files, true)
	require.NoError(t, err)
	assert.True(t, rep.Copied)
	assert.Equal(t, requester.RouteFallback, rep.Route)
	assert.Equal(t, "Failed to copy files: xclip exploded", rep.Message)
	assert.Equal(t, []string{"xclip exploded"}, rep.Diagnostics)

	assert.Len(t, e.host.Calls(), 1)
	assert.Equal(t, [][]string{e.files}, e.local.Calls())
	require.Eventually(t, func() bool { return e.mailboxEmpty(t) }, 2*time.Second, 10*time.Millisecond)
}
