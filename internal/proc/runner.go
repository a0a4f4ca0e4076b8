// Package proc runs short-lived interpreter processes with bounded output
// capture and a graceful interrupt-then-kill timeout.
package proc

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultGracePeriod is the time between the interrupt and the kill.
	DefaultGracePeriod = 2 * time.Second

	// DefaultOutputLimit caps how much of each stream is retained.
	DefaultOutputLimit = 64 * 1024
)

var (
	// ErrSpawn is returned when the process could not be started at all.
	ErrSpawn = errors.New("failed to start process")

	// ErrTimeout is returned when the process outlived Command.Timeout.
	ErrTimeout = errors.New("process timed out")
)

// Command describes one process invocation. Args are passed to the program
// as discrete elements and never through a shell.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string

	Timeout     time.Duration
	GracePeriod time.Duration
	OutputLimit int
}

// Result holds the observable outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Tail returns the last lines of stderr, falling back to stdout when stderr is
// empty, for use in error messages.
func (r *Result) Tail(lines int) string {
	if r == nil {
		return ""
	}
	out := strings.TrimSpace(r.Stderr)
	if out == "" {
		out = strings.TrimSpace(r.Stdout)
	}
	parts := strings.Split(out, "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}

// ExitError reports a process that ran and exited with a non-zero status.
type ExitError struct {
	Code   int
	Result *Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// Run starts the command and waits for it to terminate. The returned Result is
// populated whenever the process was started, including on timeout and on a
// non-zero exit. Both output streams are fully drained before Run returns.
func Run(ctx context.Context, c Command) (*Result, error) {
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = DefaultOutputLimit
	}

	cmd := exec.Command(c.Path, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	configureGroup(cmd)
	cmd.WaitDelay = c.GracePeriod

	stdout := newTailBuffer(c.OutputLimit)
	stderr := newTailBuffer(c.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		logExecution(c, 0, -1, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, c.Path, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr, stopErr error
	select {
	case waitErr = <-done:
	case <-timeout:
		stopErr = fmt.Errorf("%w after %v", ErrTimeout, c.Timeout)
		waitErr = terminate(cmd, done, c.GracePeriod)
	case <-ctx.Done():
		stopErr = ctx.Err()
		waitErr = terminate(cmd, done, c.GracePeriod)
	}

	res := &Result{
		ExitCode: exitCode(cmd, waitErr),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	logExecution(c, res.Duration, res.ExitCode, firstErr(stopErr, waitErr))

	if stopErr != nil {
		return res, stopErr
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Code: res.ExitCode, Result: res}
	}
	if waitErr != nil {
		return res, waitErr
	}
	return res, nil
}

// terminate interrupts the process group, waits for the grace period and then
// kills whatever is left.
func terminate(cmd *exec.Cmd, done <-chan error, grace time.Duration) error {
	if err := interruptGroup(cmd); err != nil {
		log.Debug("Failed to interrupt process", "pid", cmd.Process.Pid, "error", err)
	}

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
	}

	if err := killGroup(cmd); err != nil {
		log.Debug("Failed to kill process", "pid", cmd.Process.Pid, "error", err)
	}
	return <-done
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return -1
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// logExecution records the invocation without dumping free text arguments
// into the log.
func logExecution(c Command, d time.Duration, code int, err error) {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		if len(a) > 64 {
			a = a[:61] + "..."
		}
		args[i] = a
	}
	if err != nil {
		log.Debug("Subprocess failed", "command", c.Path, "args", args, "duration", d, "exit", code, "error", err)
		return
	}
	log.Debug("Subprocess executed", "command", c.Path, "args", args, "duration", d)
}
