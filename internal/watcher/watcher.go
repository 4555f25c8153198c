// Package watcher implements the host side of the fileclip mailbox: it
// watches the shared directory for request files, performs the requested
// action, and answers with a result file.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/fileclip/internal/clip"
	"go.klb.dev/fileclip/internal/fileset"
	"go.klb.dev/fileclip/internal/logging"
	"go.klb.dev/fileclip/internal/mailbox"
)

const (
	// DefaultPollInterval is how often the mailbox is rescanned in case a
	// change notification was missed.
	DefaultPollInterval = time.Second

	// emptyGrace is how long a zero-length request file is given to receive
	// its content before it is treated as malformed.
	emptyGrace = 2 * time.Second
)

// Watcher serves one mailbox directory.
type Watcher struct {
	mb   *mailbox.Mailbox
	clip clip.Writer
	log  *slog.Logger

	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration

	mu       sync.Mutex
	inflight map[string]bool
	handled  map[string]os.FileInfo
}

// New returns a Watcher for dir that writes to w. A nil logger discards
// output.
func New(dir string, w clip.Writer, log *slog.Logger) *Watcher {
	if log == nil {
		log = logging.Discard()
	}
	return &Watcher{
		mb:       mailbox.New(dir),
		clip:     w,
		log:      log,
		inflight: make(map[string]bool),
		handled:  make(map[string]os.FileInfo),
	}
}

// Dir returns the mailbox directory.
func (w *Watcher) Dir() string { return w.mb.Dir() }

// Run creates the mailbox if needed, processes requests already waiting in
// it, then serves new ones until ctx is cancelled. Change notifications are
// the primary trigger; a periodic rescan covers filesystems that do not
// deliver them. Returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.mb.Ensure(); err != nil {
		return err
	}
	w.log.Info("Starting fileclip-watcher", "dir", w.mb.Dir(), "clipboard", w.clip.Name())
	defer w.log.Info("fileclip-watcher stopped")

	w.sweep(ctx)

	g, gctx := errgroup.WithContext(ctx)
	fw, err := w.subscribe()
	if err != nil {
		w.log.Warn("change notification unavailable, polling only", "err", err)
	} else {
		defer fw.Close()
		g.Go(func() error { return w.events(gctx, fw) })
	}
	g.Go(func() error { return w.poll(gctx) })

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Watcher) subscribe() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(w.mb.Dir()); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.mb.Dir(), err)
	}
	return fw, nil
}

func (w *Watcher) events(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !mailbox.IsRequestName(filepath.Base(ev.Name)) {
				continue
			}
			w.log.Debug("Detected new request file", "path", ev.Name, "op", ev.Op.String())
			w.handle(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("change notification error", "err", err)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.sweep(ctx)
		}
	}
}

// sweep handles every request file present and forgets handled entries whose
// file is gone.
func (w *Watcher) sweep(ctx context.Context) {
	pending, err := w.mb.Pending()
	if err != nil {
		w.log.Warn("cannot list mailbox", "err", err)
		return
	}
	for _, p := range pending {
		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, p)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for name := range w.handled {
		if _, err := os.Stat(filepath.Join(w.mb.Dir(), name)); errors.Is(err, fs.ErrNotExist) {
			delete(w.handled, name)
		}
	}
}

// handle processes the request at path at most once, however many events and
// sweeps report it.
func (w *Watcher) handle(ctx context.Context, path string) {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Size() == 0 && time.Since(info.ModTime()) < emptyGrace {
		return
	}

	w.mu.Lock()
	if w.inflight[name] {
		w.mu.Unlock()
		return
	}
	if prev, ok := w.handled[name]; ok && os.SameFile(prev, info) && prev.ModTime().Equal(info.ModTime()) {
		w.mu.Unlock()
		return
	}
	w.inflight[name] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.inflight, name)
		w.handled[name] = info
		w.mu.Unlock()
	}()

	w.log.Info("Processing request file", "path", path)
	res := w.Process(ctx, path)
	w.finish(res, path)
}

// Process reads the request at path and performs it. The returned result is
// never nil unless the file vanished before it could be read.
func (w *Watcher) Process(ctx context.Context, path string) *mailbox.Result {
	req, err := w.mb.ReadRequest(path)
	if err != nil {
		var pe *mailbox.ProtocolError
		switch {
		case errors.As(err, &pe):
			w.log.Error("Invalid JSON in request file", "path", path, "err", err)
			return newResult(mailbox.UnknownID, mailbox.UnknownID, "Invalid JSON")
		case errors.Is(err, fs.ErrNotExist):
			return nil
		default:
			w.log.Error("Error processing request file", "path", path, "err", err)
			return newResult(mailbox.UnknownID, mailbox.UnknownID, "Error: "+err.Error())
		}
	}

	log := w.log.With("sender", req.Sender, "request_id", req.RequestID)
	if err := req.Validate(); err != nil {
		res := newResult(req.Sender, req.RequestID, "Missing request_id or sender")
		log.Error(res.Message, "path", path)
		return res
	}
	// The id names the result file, so it must be the one in the request's
	// own file name.
	if id, ok := mailbox.RequestIDFromName(filepath.Base(path)); !ok || id != req.RequestID {
		res := newResult(mailbox.UnknownID, mailbox.UnknownID, "Invalid request_id")
		log.Error(res.Message, "path", path)
		return res
	}

	switch req.Action {
	case mailbox.ActionPing:
		log.Info("Received ping")
		res := newResult(req.Sender, req.RequestID, "Ping acknowledged")
		res.Success = true
		return res
	case mailbox.ActionCopyFiles:
		return w.copyFiles(ctx, log, req)
	default:
		res := newResult(req.Sender, req.RequestID, fmt.Sprintf("Unknown action: %s", req.Action))
		log.Error(res.Message)
		return res
	}
}

func (w *Watcher) copyFiles(ctx context.Context, log *slog.Logger, req *mailbox.Request) *mailbox.Result {
	logRequest(ctx, log, req)
	res := newResult(req.Sender, req.RequestID, "")

	valid, invalid := fileset.Partition(req.Paths)
	for _, p := range invalid {
		log.Error("Invalid path", "path", p)
		res.Errors = append(res.Errors, "Invalid or inaccessible path: "+p)
	}
	if len(valid) == 0 {
		res.Message = "No valid files to copy"
		log.Error(res.Message)
		return res
	}

	out, err := w.clip.WriteFiles(ctx, valid)
	switch {
	case err != nil:
		res.Message = "Failed to copy files: " + err.Error()
		res.Errors = append(res.Errors, err.Error())
		log.Error(res.Message, "err", err)
	case !out.Copied:
		res.Message = "Failed to copy files"
		log.Error(res.Message, "reason", "no display available", "uris", out.URIs)
	default:
		res.Success = true
		res.Message = fmt.Sprintf("Copied %d file(s)", len(valid))
		log.Info(res.Message, "backend", out.Backend)
	}
	return res
}

// finish publishes res and then deletes the request, in that order, so a
// requester that sees the request gone always finds the answer.
func (w *Watcher) finish(res *mailbox.Result, path string) {
	if res != nil {
		if res.RequestID != "" && res.RequestID != mailbox.UnknownID && w.mb.Exists(w.mb.ResultPath(res.RequestID)) {
			w.log.Warn("duplicate request_id, replacing unread result", "request_id", res.RequestID)
		}
		if out, err := w.mb.WriteResult(res); err != nil {
			w.log.Error("Failed to write result", "request_id", res.RequestID, "err", err)
		} else {
			w.log.Info("Wrote result", "path", out, "success", res.Success)
		}
	}
	if err := w.mb.Remove(path); err != nil {
		w.log.Error("Failed to remove request file", "path", path, "err", err)
	}
}

func newResult(sender, id, msg string) *mailbox.Result {
	return &mailbox.Result{Sender: sender, RequestID: id, Message: msg, Errors: []string{}}
}

// logRequest logs a copy request at INFO and each path at DEBUG.
func logRequest(ctx context.Context, log *slog.Logger, req *mailbox.Request) {
	log.Info("Processing copy request", "files", len(req.Paths))
	if !log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for _, p := range req.Paths {
		log.Debug("requested file", "path", p)
	}
}
