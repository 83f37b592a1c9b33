package backend

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// Process is a handle to a detached auto-attach loop. The holder of the
// handle is the only party allowed to signal it.
type Process interface {
	// PID returns the operating system process id.
	PID() int

	// Done is closed when the process has exited and been reaped.
	Done() <-chan struct{}

	// Exited reports whether Done is closed.
	Exited() bool

	// Stop asks the process to terminate and waits up to timeout before
	// killing it. Stopping an exited process returns nil.
	Stop(timeout time.Duration) error
}

type execProcess struct {
	cmd    *exec.Cmd
	done   chan struct{}
	logger *logging.Logger

	mu      sync.Mutex
	waitErr error
}

// SpawnAutoAttach starts the auto-attach loop for a device. The context only
// governs the launch; the loop keeps running until Stop is called.
func (r *Runner) SpawnAutoAttach(ctx context.Context, busID string) (Process, error) {
	argv := r.argv(r.AutoAttachArgs(busID)...)
	logger := r.logger.WithDevice(busID)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCanceled, strings.Join(argv, " "))
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, errors.NewLaunchError(argv, errors.Join(errors.ErrBackendNotFound, err))
	}

	cmd := exec.Command(path, argv[1:]...)
	if len(r.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), r.opts.Env...)
	}
	out := &lineLogger{logger: logger}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = nil
	configureDetached(cmd)
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		logger.Error("failed to start auto-attach", "error", err)
		return nil, errors.NewLaunchError(argv, err)
	}

	p := &execProcess{
		cmd:    cmd,
		done:   make(chan struct{}),
		logger: logger.With("pid", cmd.Process.Pid),
	}
	go p.wait()

	p.logger.Info("auto-attach started")
	return p, nil
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	out, _ := p.cmd.Stdout.(*lineLogger)
	if out != nil {
		out.Flush()
	}

	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)

	if err != nil {
		p.logger.Info("auto-attach exited", "error", err)
	} else {
		p.logger.Info("auto-attach exited")
	}
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) Stop(timeout time.Duration) error {
	if p.Exited() {
		return nil
	}

	if err := terminate(p.cmd.Process); err != nil && !p.Exited() {
		p.logger.Debug("terminate signal failed", "error", err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
	}

	p.logger.Warn("auto-attach ignored terminate, killing", "timeout", timeout.String())
	if err := forceKill(p.cmd.Process); err != nil && !p.Exited() {
		p.logger.Debug("kill failed", "error", err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return errors.NewTimeoutError("stop auto-attach", timeout)
	}
}

// lineLogger forwards child output to the debug log one line at a time.
type lineLogger struct {
	logger *logging.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *lineLogger) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineLogger) emit(line string) {
	if line = strings.TrimSpace(line); line != "" {
		w.logger.Debug("auto-attach output", "line", line)
	}
}
