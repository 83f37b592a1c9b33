//go:build windows

package backend

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureBounded hides the console window of a one-shot command.
func configureBounded(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// configureDetached runs the auto-attach loop in a new process group without
// a console window.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW,
	}
}

// terminate kills the process; console programs started without a console
// cannot receive a graceful break event.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func forceKill(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
