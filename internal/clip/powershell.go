package clip

import (
	"context"
	"strings"
)

// powershellWriter uses Set-Clipboard -LiteralPath, which stores a file drop
// list that Explorer and most applications paste as files.
type powershellWriter struct {
	opts Options
}

func (w *powershellWriter) Name() string { return "Windows Set-Clipboard (PowerShell)" }

func (w *powershellWriter) WriteFiles(ctx context.Context, paths []string) (Outcome, error) {
	if len(paths) == 0 {
		return Outcome{}, nil
	}
	cmd := powershellCommand(paths)
	w.opts.Logger.Debug("running clipboard utility", "cmd", cmd.Name, "files", len(paths))
	if err := w.opts.Runner.Run(ctx, cmd); err != nil {
		return Outcome{}, &UtilityError{Platform: "Windows", Tool: cmd.Name, Err: err}
	}
	return Outcome{Copied: true, Backend: w.Name()}, nil
}

func powershellCommand(paths []string) Command {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
	}
	return Command{
		Name: "powershell.exe",
		Args: []string{
			"-NoProfile",
			"-NonInteractive",
			"-Command",
			"Set-Clipboard -LiteralPath " + strings.Join(quoted, ","),
		},
	}
}
