package clip

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.design/x/clipboard"
)

// URITextWriter places the file:// URIs on the clipboard as plain text
// instead of file references. On X11 the selection is served by this process,
// so it suits the long-running watcher better than one-shot CLI calls.
type URITextWriter struct {
	once    sync.Once
	initErr error
}

// NewURITextWriter returns a Writer backed by golang.design/x/clipboard.
// clipboard.Init is deferred to the first write so that constructing the
// writer on a headless host does not fail.
func NewURITextWriter() *URITextWriter { return &URITextWriter{} }

func (w *URITextWriter) Name() string { return "file URIs as text (system clipboard)" }

func (w *URITextWriter) WriteFiles(ctx context.Context, paths []string) (Outcome, error) {
	if len(paths) == 0 {
		return Outcome{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	w.once.Do(func() { w.initErr = clipboard.Init() })
	if w.initErr != nil {
		return Outcome{}, &UtilityError{
			Platform: "text",
			Tool:     "system clipboard",
			Err:      fmt.Errorf("%w: %v", ErrUtilityMissing, w.initErr),
		}
	}
	uris := FileURIs(paths)
	clipboard.Write(clipboard.FmtText, []byte(strings.Join(uris, "\n")))
	return Outcome{Copied: true, Backend: w.Name()}, nil
}
