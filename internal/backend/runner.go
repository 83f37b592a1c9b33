// Package backend runs the usbipd command-line tool.
//
// Every invocation goes through one of three shapes:
//
//   - bounded: a one-shot command that is killed when it exceeds its timeout
//     (list, attach, detach)
//   - elevated: a one-shot command launched through the platform's privilege
//     escalation mechanism (bind, unbind)
//   - detached: a long-lived auto-attach loop returned as a Process handle
//
// The Runner never interprets device state. Callers re-poll after a
// mutating command to learn its effect.
package backend

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// Default timeouts applied when Options leaves them zero.
const (
	DefaultCommandTimeout = 20 * time.Second
	DefaultListTimeout    = 10 * time.Second
)

// waitDelay bounds how long Wait blocks on inherited pipes after the child
// has been killed, so a grandchild holding stdout open cannot wedge the caller.
const waitDelay = 2 * time.Second

// Options configures a Runner.
type Options struct {
	// Path is the backend executable, resolved through PATH when not absolute.
	Path string
	// BaseArgs are inserted before every verb.
	BaseArgs []string
	// Env is appended to the inherited environment of every child.
	Env []string
	// WSLTarget is the distribution passed to --wsl. Empty selects the default.
	WSLTarget string

	CommandTimeout time.Duration
	ListTimeout    time.Duration

	// ElevateCommand wraps bind/unbind on unix (for example pkexec or sudo).
	// It is ignored on Windows, which always uses the "runas" shell verb.
	ElevateCommand string
}

// Result is the outcome of a process that ran to completion.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Elevator launches a backend invocation with administrative privileges.
type Elevator interface {
	Elevate(ctx context.Context, args []string) error
}

// Runner executes backend invocations.
type Runner struct {
	opts     Options
	elevator Elevator
	logger   *logging.Logger
}

// NewRunner creates a Runner with the platform elevator.
func NewRunner(opts Options, logger *logging.Logger) *Runner {
	if opts.Path == "" {
		opts.Path = "usbipd"
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = DefaultListTimeout
	}
	r := &Runner{
		opts:   opts,
		logger: logging.OrNop(logger).WithComponent("backend"),
	}
	r.elevator = newElevator(r)
	return r
}

// WithElevator replaces the elevation mechanism.
func (r *Runner) WithElevator(e Elevator) *Runner {
	r.elevator = e
	return r
}

// argv returns the full command line for a verb, executable first.
func (r *Runner) argv(args ...string) []string {
	out := make([]string, 0, 1+len(r.opts.BaseArgs)+len(args))
	out = append(out, r.opts.Path)
	out = append(out, r.opts.BaseArgs...)
	return append(out, args...)
}

// Run executes a bounded backend invocation. A non-zero exit is not an error
// here; it is reported through Result.ExitCode. Errors are *errors.LaunchError
// when the process could not start and *errors.TimeoutError when it was killed
// at the deadline.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) (*Result, error) {
	argv := r.argv(args...)
	return r.exec(ctx, timeout, argv)
}

func (r *Runner) exec(ctx context.Context, timeout time.Duration, argv []string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCanceled, strings.Join(argv, " "))
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, errors.NewLaunchError(argv, errors.Join(errors.ErrBackendNotFound, err))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, argv[1:]...)
	if len(r.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), r.opts.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureBounded(cmd)
	cmd.WaitDelay = waitDelay

	r.logger.Debug("running backend command", "args", argv[1:], "timeout", timeout.String())
	start := time.Now()
	if err := cmd.Start(); err != nil {
		r.logger.Error("failed to start backend command", "args", argv[1:], "error", err)
		return nil, errors.NewLaunchError(argv, err)
	}
	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		r.logger.Error("backend command timed out", "args", argv[1:], "timeout", timeout.String())
		return nil, errors.NewTimeoutError(strings.Join(argv, " "), timeout).WithCause(waitErr)
	}
	if ctx.Err() != nil {
		return nil, errors.Wrap(errors.ErrCanceled, strings.Join(argv, " "))
	}

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			res.ExitCode = cmd.ProcessState.ExitCode()
		default:
			return nil, errors.NewLaunchError(argv, waitErr)
		}
	}

	r.logger.Debug("backend command finished",
		"args", argv[1:],
		"exit_code", res.ExitCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// check converts a non-zero exit into a *errors.CommandError.
func (res *Result) check(argv []string) error {
	if res.ExitCode == 0 {
		return nil
	}
	return errors.NewCommandError(argv, res.ExitCode, string(res.Stderr))
}

// ListOutput runs `list` and returns its standard output. A non-zero exit is
// tolerated when stdout still carries a table.
func (r *Runner) ListOutput(ctx context.Context) ([]byte, error) {
	res, err := r.Run(ctx, r.opts.ListTimeout, "list")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		if len(bytes.TrimSpace(res.Stdout)) == 0 {
			return nil, res.check(r.argv("list"))
		}
		r.logger.Warn("list exited non-zero with output", "exit_code", res.ExitCode)
	}
	return res.Stdout, nil
}

// Bind shares a device. It requires elevation.
func (r *Runner) Bind(ctx context.Context, busID string, force bool) error {
	args := []string{"bind", "--busid", busID}
	if force {
		args = append(args, "--force")
	}
	return r.elevated(ctx, busID, args)
}

// Unbind stops sharing a device. It requires elevation.
func (r *Runner) Unbind(ctx context.Context, busID string) error {
	return r.elevated(ctx, busID, []string{"unbind", "--busid", busID})
}

func (r *Runner) elevated(ctx context.Context, busID string, args []string) error {
	logger := r.logger.WithDevice(busID)
	logger.Info("launching elevated command", "verb", args[0])
	if err := r.elevator.Elevate(ctx, args); err != nil {
		logger.Error("elevated command failed", "verb", args[0], "error", err)
		return err
	}
	return nil
}

// Attach attaches a shared device to the guest once.
func (r *Runner) Attach(ctx context.Context, busID string) error {
	return r.bounded(ctx, busID, r.attachArgs(busID))
}

// Detach detaches a device from the guest.
func (r *Runner) Detach(ctx context.Context, busID string) error {
	return r.bounded(ctx, busID, []string{"detach", "--busid", busID})
}

func (r *Runner) bounded(ctx context.Context, busID string, args []string) error {
	res, err := r.Run(ctx, r.opts.CommandTimeout, args...)
	if err != nil {
		return err
	}
	if err := res.check(r.argv(args...)); err != nil {
		r.logger.WithDevice(busID).Error("backend command failed",
			"verb", args[0], "exit_code", res.ExitCode)
		return err
	}
	return nil
}

func (r *Runner) attachArgs(busID string) []string {
	args := []string{"attach", "--wsl"}
	if r.opts.WSLTarget != "" {
		args = append(args, r.opts.WSLTarget)
	}
	return append(args, "--busid", busID)
}

// AutoAttachArgs returns the verb and flags of the auto-attach loop for a
// device, without the executable.
func (r *Runner) AutoAttachArgs(busID string) []string {
	return append(r.attachArgs(busID), "--auto-attach")
}

// CommandTimeout returns the bound applied to attach and detach.
func (r *Runner) CommandTimeout() time.Duration {
	return r.opts.CommandTimeout
}
