//go:build unix

package backend

import (
	"context"
	"os"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
)

// Exit codes pkexec uses when the user dismisses or fails authentication.
const (
	exitAuthDismissed = 126
	exitNotAuthorized = 127
)

// commandElevator runs the backend under a wrapper such as pkexec. Unlike a
// shell "runas" launch it is bounded and captures the command's own outcome.
type commandElevator struct {
	runner  *Runner
	command string
}

func newElevator(r *Runner) Elevator {
	return &commandElevator{runner: r, command: r.opts.ElevateCommand}
}

func (e *commandElevator) Elevate(ctx context.Context, args []string) error {
	argv := e.runner.argv(args...)
	wrapped := e.command != "" && os.Geteuid() != 0
	if wrapped {
		argv = append([]string{e.command}, argv...)
	}

	res, err := e.runner.exec(ctx, e.runner.opts.CommandTimeout, argv)
	if err != nil {
		return err
	}
	if wrapped && (res.ExitCode == exitAuthDismissed || res.ExitCode == exitNotAuthorized) {
		return errors.NewLaunchError(argv, errors.ErrElevationRejected).WithElevated(res.ExitCode)
	}
	return res.check(argv)
}
