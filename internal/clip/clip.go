// Package clip places file references on the host clipboard.
//
// Every platform exposes the same Writer capability; the variant is chosen
// once at startup:
//
//	finder.go      macOS via osascript / Finder
//	powershell.go  Windows via Set-Clipboard
//	xdg.go         Linux via wl-copy (Wayland) or xclip (X11), with a
//	               headless outcome when no display answers
//	uritext.go     any platform: file:// URIs as plain text through
//	               golang.design/x/clipboard
//
// The native utilities are run through a Runner so they can be replaced in
// tests.
package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.klb.dev/fileclip/internal/logging"
)

// DefaultTimeout bounds a single clipboard utility invocation.
const DefaultTimeout = 5 * time.Second

var (
	// ErrUtilityMissing means the clipboard utility is not installed.
	ErrUtilityMissing = errors.New("clipboard utility not found")
	// ErrTimeout means the clipboard utility did not finish in time.
	ErrTimeout = errors.New("clipboard utility timed out")
	// ErrUnsupported means no Writer exists for the running platform.
	ErrUnsupported = errors.New("unsupported platform")
)

// UtilityError reports a failed clipboard utility invocation. Err wraps
// ErrUtilityMissing, ErrTimeout, or an *ExitError.
type UtilityError struct {
	Platform string
	Tool     string
	Err      error
}

func (e *UtilityError) Error() string {
	return fmt.Sprintf("%s clipboard error (%s): %v", e.Platform, e.Tool, e.Err)
}

func (e *UtilityError) Unwrap() error { return e.Err }

// Outcome describes what a Writer managed to do.
type Outcome struct {
	// Copied is true when the files are now on the clipboard.
	Copied bool
	// Backend names the mechanism that placed them there.
	Backend string
	// URIs holds the file:// form of every path when no display could be
	// reached; the caller should surface them for manual use.
	URIs []string
}

// Writer is the platform capability to put files on the clipboard.
type Writer interface {
	// Name returns a human-readable name for the writer.
	Name() string

	// WriteFiles places the given absolute paths on the clipboard as file
	// references. Failing to reach a display is reported through Outcome,
	// not as an error.
	WriteFiles(ctx context.Context, paths []string) (Outcome, error)
}

// Options configures a platform Writer.
type Options struct {
	// Timeout bounds each utility invocation. Zero means DefaultTimeout.
	Timeout time.Duration
	// Runner executes utilities. Nil means an ExecRunner with Timeout.
	Runner Runner
	// Getenv looks up environment variables. Nil means os.Getenv.
	Getenv func(string) string
	// Logger receives diagnostics. Nil means discard.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Runner == nil {
		o.Runner = ExecRunner{Timeout: o.Timeout}
	}
	if o.Getenv == nil {
		o.Getenv = osGetenv
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// New returns the Writer for the running platform.
func New(opts Options) (Writer, error) {
	return ForOS(runtime.GOOS, opts)
}

// ForOS returns the Writer for goos.
func ForOS(goos string, opts Options) (Writer, error) {
	opts = opts.withDefaults()
	switch goos {
	case "darwin":
		return &finderWriter{opts: opts}, nil
	case "windows":
		return &powershellWriter{opts: opts}, nil
	case "linux":
		return &xdgWriter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

// FileURI returns the file:// URI for an absolute path.
func FileURI(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths become file:///C:/...
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// FileURIs maps FileURI over paths.
func FileURIs(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = FileURI(p)
	}
	return out
}
