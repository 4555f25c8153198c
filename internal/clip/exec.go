package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long we wait for a forked helper (wl-copy, xclip) to
// release our stdio pipes after the parent process has exited.
const waitDelay = time.Second

// Command is a single clipboard utility invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin []byte
	// Env is appended to the current environment.
	Env []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes a Command.
type Runner interface {
	Run(ctx context.Context, c Command) error
}

// ExitError is returned by ExecRunner when the utility exits non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes c. A missing binary yields ErrUtilityMissing, an expired
// timeout ErrTimeout, and a non-zero exit an *ExitError.
func (r ExecRunner) Run(ctx context.Context, c Command) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, exec.ErrWaitDelay):
		// The utility exited cleanly but a forked child kept the pipe open.
		return nil
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%s: %w", c.Name, ErrUtilityMissing)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s after %s: %w", c.Name, r.Timeout, ErrTimeout)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &exitErr):
		return &ExitError{Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
	default:
		return fmt.Errorf("%s: %w", c.Name, err)
	}
}

func osGetenv(key string) string { return os.Getenv(key) }
