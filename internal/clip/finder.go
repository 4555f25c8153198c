package clip

import (
	"context"
	"strings"
)

// finderWriter asks Finder (via osascript) to hold POSIX file references.
type finderWriter struct {
	opts Options
}

func (w *finderWriter) Name() string { return "macOS Finder (osascript)" }

func (w *finderWriter) WriteFiles(ctx context.Context, paths []string) (Outcome, error) {
	if len(paths) == 0 {
		return Outcome{}, nil
	}
	cmd := finderCommand(paths)
	w.opts.Logger.Debug("running clipboard utility", "cmd", cmd.Name, "files", len(paths))
	if err := w.opts.Runner.Run(ctx, cmd); err != nil {
		return Outcome{}, &UtilityError{Platform: "macOS", Tool: cmd.Name, Err: err}
	}
	return Outcome{Copied: true, Backend: w.Name()}, nil
}

func finderCommand(paths []string) Command {
	files := make([]string, len(paths))
	for i, p := range paths {
		files[i] = `POSIX file "` + appleScriptEscape(p) + `"`
	}
	script := `tell app "Finder" to set the clipboard to {` + strings.Join(files, ", ") + `}`
	return Command{Name: "osascript", Args: []string{"-e", script}}
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
