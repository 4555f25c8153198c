package clip

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// xdgWriter publishes a text/uri-list selection through wl-copy or xclip.
//
// Wayland is tried first when WAYLAND_DISPLAY is set; a missing or stalled
// wl-copy falls through to X11. A missing xclip is an error, a stalled one
// falls through to the headless outcome. Any non-zero exit is terminal.
type xdgWriter struct {
	opts Options
}

func (w *xdgWriter) Name() string { return "Linux uri-list (wl-copy / xclip)" }

func (w *xdgWriter) WriteFiles(ctx context.Context, paths []string) (Outcome, error) {
	if len(paths) == 0 {
		return Outcome{}, nil
	}
	log := w.opts.Logger
	uris := FileURIs(paths)
	input := []byte(strings.Join(uris, "\n"))
	env := w.childEnv()

	if display := w.opts.Getenv("WAYLAND_DISPLAY"); display != "" {
		cmd := Command{Name: "wl-copy", Args: []string{"--type", "text/uri-list"}, Stdin: input, Env: env}
		log.Debug("trying Wayland clipboard", "wayland_display", display, "files", len(paths))
		err := w.opts.Runner.Run(ctx, cmd)
		switch {
		case err == nil:
			return Outcome{Copied: true, Backend: "Wayland (wl-copy)"}, nil
		case errors.Is(err, ErrUtilityMissing):
			log.Info("wl-copy not found, falling back to xclip")
		case errors.Is(err, ErrTimeout):
			log.Warn("Wayland clipboard timed out, falling back to xclip", "err", err)
		case ctx.Err() != nil:
			return Outcome{}, ctx.Err()
		default:
			return Outcome{}, &UtilityError{Platform: "Wayland", Tool: cmd.Name, Err: err}
		}
	}

	if display := w.opts.Getenv("DISPLAY"); display != "" {
		cmd := Command{Name: "xclip", Args: []string{"-selection", "clipboard", "-t", "text/uri-list"}, Stdin: input, Env: env}
		log.Debug("trying X11 clipboard", "display", display, "files", len(paths))
		err := w.opts.Runner.Run(ctx, cmd)
		switch {
		case err == nil:
			return Outcome{Copied: true, Backend: "X11 (xclip)"}, nil
		case errors.Is(err, ErrTimeout):
			log.Warn("X11 clipboard timed out", "err", err)
		case ctx.Err() != nil:
			return Outcome{}, ctx.Err()
		default:
			// ErrUtilityMissing lands here: install xclip (e.g. apt install xclip).
			return Outcome{}, &UtilityError{Platform: "X11", Tool: cmd.Name, Err: err}
		}
	}

	log.Warn("no functional display server detected, returning file URIs")
	return Outcome{URIs: uris}, nil
}

// childEnv supplies XDG_RUNTIME_DIR, which wl-copy needs to find the
// compositor socket, when the caller's environment lacks it.
func (w *xdgWriter) childEnv() []string {
	if w.opts.Getenv("XDG_RUNTIME_DIR") != "" {
		return nil
	}
	return []string{fmt.Sprintf("XDG_RUNTIME_DIR=/run/user/%d", os.Getuid())}
}
