// Package requester puts files on the host clipboard from inside a sandboxed
// workspace.
//
// When a watcher is reachable through the shared mailbox the request is
// handed to it with container paths rewritten to host paths. When it is not,
// or it fails, the requester writes the local clipboard directly with the
// original paths.
package requester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"go.klb.dev/fileclip/internal/clip"
	"go.klb.dev/fileclip/internal/fileset"
	"go.klb.dev/fileclip/internal/logging"
	"go.klb.dev/fileclip/internal/mailbox"
	"go.klb.dev/fileclip/internal/pathmap"
	"go.klb.dev/fileclip/internal/sandbox"
)

// MailboxDirName is the mailbox directory created under a workspace root.
const MailboxDirName = ".fileclip"

const (
	DefaultProbeTimeout  = 2 * time.Second
	DefaultResultTimeout = 10 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
)

var (
	// ErrConfigMissing means watcher mode was requested without both
	// workspace roots.
	ErrConfigMissing = errors.New("container and host workspace roots must both be set for watcher mode")
	// ErrMailboxTimeout means no result arrived within the result timeout.
	ErrMailboxTimeout = errors.New("no response from watcher")
)

// Route names the path a copy took.
type Route string

const (
	// RouteDirect is a local clipboard write chosen up front.
	RouteDirect Route = "direct"
	// RouteWatcher is a write performed by the host watcher.
	RouteWatcher Route = "watcher"
	// RouteFallback is a local clipboard write after the watcher was absent
	// or failed.
	RouteFallback Route = "fallback"
)

// Config holds the requester settings. Zero durations use the defaults.
type Config struct {
	// MailboxDir defaults to <ContainerRoot>/.fileclip.
	MailboxDir    string
	ContainerRoot string
	HostRoot      string
	// Sender identifies this process in requests; defaults to
	// container_pid_<pid>.
	Sender        string
	ProbeTimeout  time.Duration
	ResultTimeout time.Duration
	PollInterval  time.Duration
	// Sandboxed reports whether we run in a constrained workspace; defaults to
	// sandbox.Detect.
	Sandboxed func() bool
}

// DefaultSender returns the sender id for the current process.
func DefaultSender() string { return fmt.Sprintf("container_pid_%d", os.Getpid()) }

func (c Config) withDefaults() Config {
	if c.MailboxDir == "" && c.ContainerRoot != "" {
		c.MailboxDir = filepath.Join(c.ContainerRoot, MailboxDirName)
	}
	if c.Sender == "" {
		c.Sender = DefaultSender()
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ResultTimeout <= 0 {
		c.ResultTimeout = DefaultResultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Sandboxed == nil {
		c.Sandboxed = sandbox.Detect
	}
	return c
}

// Report describes a finished copy.
type Report struct {
	// Copied is true when the files reached a clipboard.
	Copied bool
	Route  Route
	// Backend names the local clipboard mechanism for direct and fallback
	// routes.
	Backend string
	// Message is the watcher's result message, or why we fell back.
	Message string
	// Diagnostics carries the per-path errors reported by the watcher.
	Diagnostics []string
	// URIs is set when a local write found no display; see clip.Outcome.
	URIs []string
}

// Requester coordinates a copy with the host watcher.
type Requester struct {
	cfg  Config
	mb   *mailbox.Mailbox
	clip clip.Writer
	log  *slog.Logger
}

// New returns a Requester that falls back to w for local writes. A nil
// logger discards output.
func New(cfg Config, w clip.Writer, log *slog.Logger) *Requester {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logging.Discard()
	}
	return &Requester{
		cfg:  cfg,
		mb:   mailbox.New(cfg.MailboxDir),
		clip: w,
		log:  log,
	}
}

// MailboxDir returns the mailbox directory in use.
func (r *Requester) MailboxDir() string { return r.cfg.MailboxDir }

// CopyFiles places paths on the clipboard.
//
// Every path must be an existing regular file; the first one that is not
// aborts the call before anything is written. With useWatcher set inside a
// sandbox the copy goes through the mailbox, otherwise it is written
// directly. Watcher absence, timeout, or failure degrade to a direct write
// with the original paths; only errors from that write are returned.
func (r *Requester) CopyFiles(ctx context.Context, paths []string, useWatcher bool) (*Report, error) {
	if len(paths) == 0 {
		return &Report{Route: RouteDirect}, nil
	}
	local, err := fileset.Resolve(paths)
	if err != nil {
		return nil, err
	}

	if !useWatcher || !r.cfg.Sandboxed() {
		return r.direct(ctx, local, RouteDirect, "")
	}
	if r.cfg.ContainerRoot == "" || r.cfg.HostRoot == "" {
		return nil, ErrConfigMissing
	}
	host, err := pathmap.TranslateAll(local, r.cfg.ContainerRoot, r.cfg.HostRoot)
	if err != nil {
		return nil, err
	}

	alive, err := r.Ping(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !alive {
		reason := "file watcher is not running"
		r.log.Warn(reason+", falling back to direct clipboard write", "mailbox", r.mb.Dir(), "err", err)
		return r.direct(ctx, local, RouteFallback, reason)
	}

	res, err := r.submit(ctx, host)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrMailboxTimeout):
		r.log.Warn("timed out waiting for watcher, falling back to direct clipboard write",
			"timeout", r.cfg.ResultTimeout)
		return r.direct(ctx, local, RouteFallback, err.Error())
	case err != nil:
		r.log.Warn("mailbox exchange failed, falling back to direct clipboard write", "err", err)
		return r.direct(ctx, local, RouteFallback, err.Error())
	case !res.Success:
		r.log.Warn("watcher reported failure, falling back to direct clipboard write",
			"message", res.Message, "errors", res.Errors)
		rep, err := r.direct(ctx, local, RouteFallback, res.Message)
		if err != nil {
			return nil, err
		}
		rep.Diagnostics = res.Errors
		return rep, nil
	}

	for _, e := range res.Errors {
		r.log.Warn("watcher diagnostic", "error", e)
	}
	r.log.Info("files copied by watcher", "message", res.Message, "files", len(host))
	return &Report{
		Copied:      true,
		Route:       RouteWatcher,
		Message:     res.Message,
		Diagnostics: res.Errors,
	}, nil
}

func (r *Requester) direct(ctx context.Context, paths []string, route Route, reason string) (*Report, error) {
	out, err := r.clip.WriteFiles(ctx, paths)
	if err != nil {
		return nil, err
	}
	return &Report{
		Copied:  out.Copied,
		Route:   route,
		Backend: out.Backend,
		Message: reason,
		URIs:    out.URIs,
	}, nil
}

// Ping writes a ping request and reports whether a watcher consumed it within
// the probe timeout. An unanswered ping is withdrawn. The error explains a
// false result; it is ctx.Err() when ctx ended first.
func (r *Requester) Ping(ctx context.Context) (bool, error) {
	if r.cfg.MailboxDir == "" {
		return false, ErrConfigMissing
	}
	if err := r.mb.Ensure(); err != nil {
		return false, err
	}
	id := mailbox.NewRequestID()
	path, err := r.mb.WriteRequest(&mailbox.Request{
		Action:    mailbox.ActionPing,
		Sender:    r.cfg.Sender,
		RequestID: id,
	})
	if err != nil {
		return false, err
	}
	r.log.Debug("ping sent", "request_id", id)

	probe, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()
	tick := time.NewTicker(r.cfg.PollInterval)
	defer tick.Stop()

	for {
		if !r.mb.Exists(path) {
			// The watcher writes the result before deleting the request.
			_ = r.mb.Remove(r.mb.ResultPath(id))
			r.log.Debug("ping acknowledged", "request_id", id)
			return true, nil
		}
		select {
		case <-probe.Done():
			_ = r.mb.Remove(path)
			_ = r.mb.Remove(r.mb.ResultPath(id))
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return false, fmt.Errorf("ping not acknowledged within %s", r.cfg.ProbeTimeout)
		case <-tick.C:
		}
	}
}

// submit publishes a copy_files request and waits for its result. The request
// is withdrawn if no result arrives.
func (r *Requester) submit(ctx context.Context, paths []string) (*mailbox.Result, error) {
	// Subscribe before publishing so the result event cannot be missed.
	fw, err := r.subscribe()
	if err != nil {
		r.log.Debug("change notification unavailable, polling", "dir", r.mb.Dir(), "err", err)
	} else {
		defer fw.Close()
	}

	req := &mailbox.Request{
		Action:    mailbox.ActionCopyFiles,
		Sender:    r.cfg.Sender,
		RequestID: mailbox.NewRequestID(),
		Paths:     paths,
	}
	reqPath, err := r.mb.WriteRequest(req)
	if err != nil {
		return nil, err
	}
	r.log.Debug("copy request sent", "request_id", req.RequestID, "files", len(paths))

	res, err := r.await(ctx, req.RequestID, fw)
	// Normally already gone; otherwise this withdraws it.
	if rmErr := r.mb.Remove(reqPath); rmErr != nil {
		r.log.Debug("cannot remove request", "path", reqPath, "err", rmErr)
	}
	return res, err
}

func (r *Requester) subscribe() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(r.mb.Dir()); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return fw, nil
}

// await waits for the result of id, waking on change notifications, the poll
// interval, the result timeout, or ctx, whichever comes first. The result
// file is consumed.
func (r *Requester) await(ctx context.Context, id string, fw *fsnotify.Watcher) (*mailbox.Result, error) {
	deadline := time.NewTimer(r.cfg.ResultTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.cfg.PollInterval)
	defer tick.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw != nil {
		events, errs = fw.Events, fw.Errors
	}
	resultPath := r.mb.ResultPath(id)

	for {
		if r.mb.Exists(resultPath) {
			res, err := r.mb.ReadResult(id)
			_ = r.mb.Remove(resultPath)
			if err != nil {
				return nil, err
			}
			return res, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w within %s", ErrMailboxTimeout, r.cfg.ResultTimeout)
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.log.Debug("change notification error", "err", err)
		case <-tick.C:
		}
	}
}
