package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/settle/pkg/api"
)

// ShellConfig describes a shell command run once per item.
type ShellConfig struct {
	// Shell defaults to "sh".
	Shell string

	// Script is passed to Shell with -c.
	Script string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Env is appended to the process environment.
	Env []string
}

// ExitError is returned when the command exits with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Shell returns a worker running cfg.Script as `Shell -c Script _ ITEM`.
func Shell(cfg ShellConfig) api.Worker[string, string] {
	shell := cfg.Shell
	if shell == "" {
		shell = "sh"
	}
	return func(ctx context.Context, item string, index int) (string, error) {
		c := exec.CommandContext(ctx, shell, "-c", cfg.Script, "_", item)
		c.Dir = cfg.Dir
		// Children of the shell may hold stdout open after it is killed.
		c.WaitDelay = time.Second
		c.Env = append(os.Environ(), cfg.Env...)
		c.Env = append(c.Env,
			"SETTLE_ITEM="+item,
			"SETTLE_INDEX="+strconv.Itoa(index),
		)

		var stdout, stderr bytes.Buffer
		c.Stdout = &stdout
		c.Stderr = &stderr

		if err := c.Run(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return "", &ExitError{
					Code:   exitErr.ExitCode(),
					Stderr: strings.TrimSpace(stderr.String()),
					Err:    err,
				}
			}
			return "", err
		}
		return strings.TrimRight(stdout.String(), "\r\n"), nil
	}
}

// WithTimeout bounds every attempt of w to d. d <= 0 returns w unchanged.
func WithTimeout[T, R any](w api.Worker[T, R], d time.Duration) api.Worker[T, R] {
	if d <= 0 {
		return w
	}
	return func(ctx context.Context, item T, index int) (R, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return w(ctx, item, index)
	}
}

// Func adapts fn to a Worker.
func Func[T, R any](fn func(item T) (R, error)) api.Worker[T, R] {
	return func(_ context.Context, item T, _ int) (R, error) {
		return fn(item)
	}
}
