//go:build unix

package backend

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureBounded puts a one-shot command in its own process group and makes
// the deadline kill the whole group, so helpers it forked are reaped too.
func configureBounded(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return forceKill(cmd.Process)
	}
}

// configureDetached starts the auto-attach loop in its own process group so a
// terminal interrupt reaches this program first and shutdown stays orderly.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func forceKill(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	if err := unix.Kill(-p.Pid, sig); err != nil {
		// The group may already be gone; fall back to the leader alone.
		return p.Signal(sig)
	}
	return nil
}
