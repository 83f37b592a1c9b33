//go:build windows

package backend

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
)

// shellExecuteMaxError is the largest ShellExecute return value that means
// the launch failed.
const shellExecuteMaxError = 32

// windows.ShellExecute keeps only GetLastError on failure; the procedure is
// called directly so the return code itself is reported.
var procShellExecuteW = windows.NewLazySystemDLL("shell32.dll").NewProc("ShellExecuteW")

// shellElevator launches the backend through the "runas" shell verb, which
// shows the UAC prompt. The elevated process runs detached, so only the
// launch result is known; callers re-poll to confirm the effect.
type shellElevator struct {
	runner *Runner
}

func newElevator(r *Runner) Elevator {
	return &shellElevator{runner: r}
}

func (e *shellElevator) Elevate(ctx context.Context, args []string) error {
	argv := e.runner.argv(args...)
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCanceled, strings.Join(argv, " "))
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return errors.NewLaunchError(argv, errors.Join(errors.ErrBackendNotFound, err))
	}

	quoted := make([]string, 0, len(argv)-1)
	for _, a := range argv[1:] {
		quoted = append(quoted, windows.EscapeArg(a))
	}

	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return errors.NewLaunchError(argv, err)
	}
	file, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return errors.NewLaunchError(argv, err)
	}
	params, err := windows.UTF16PtrFromString(strings.Join(quoted, " "))
	if err != nil {
		return errors.NewLaunchError(argv, err)
	}

	r1, _, lastErr := procShellExecuteW.Call(
		0,
		uintptr(unsafe.Pointer(verb)),
		uintptr(unsafe.Pointer(file)),
		uintptr(unsafe.Pointer(params)),
		0,
		uintptr(windows.SW_HIDE),
	)
	if err := shellExecuteResult(int(r1), lastErr); err != nil {
		return errors.NewLaunchError(argv, err).WithElevated(int(r1))
	}
	return nil
}

// shellExecuteResult interprets a ShellExecute return code. Codes above 32
// are success; anything else is a rejected elevation, with the thread's last
// error attached when one was set.
func shellExecuteResult(code int, lastErr error) error {
	if code > shellExecuteMaxError {
		return nil
	}
	var errno syscall.Errno
	if errors.As(lastErr, &errno) && errno != 0 {
		return errors.Join(errors.ErrElevationRejected, errno)
	}
	return errors.Join(errors.ErrElevationRejected, fmt.Errorf("ShellExecute returned %d", code))
}
