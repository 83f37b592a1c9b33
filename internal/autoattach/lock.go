package autoattach

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// LockFileName is created next to the state file by the process that owns
// the auto-attach set.
const LockFileName = "auto_attach.lock"

// ErrLocked is returned when another live process owns the auto-attach set.
var ErrLocked = errors.New("auto-attach is managed by another process")

// Lock is an acquired ownership claim on the auto-attach state file. Only
// one supervisor may reconcile and rewrite the set at a time.
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	path   string
	logger *logging.Logger
}

// LockPath returns the lock file that guards stateFile.
func LockPath(stateFile string) string {
	return filepath.Join(filepath.Dir(stateFile), LockFileName)
}

// AcquireLock claims the lock file at path. A lock left by a process that
// is no longer running is removed first.
func AcquireLock(path string, logger *logging.Logger) (*Lock, error) {
	return acquireLock(path, logger, pidAlive)
}

func acquireLock(path string, logger *logging.Logger, alive func(pid int) bool) (*Lock, error) {
	logger = logging.OrNop(logger).WithComponent("lock")

	if existing, err := ReadLock(path); err == nil {
		if existing.PID != os.Getpid() && alive(existing.PID) {
			return nil, fmt.Errorf("%w: PID %d on %s", ErrLocked, existing.PID, existing.Hostname)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "old_pid", existing.PID)
	} else if !os.IsNotExist(err) {
		// Unreadable lock: nothing can prove it is live, so replace it.
		logger.Warn("replacing unreadable lock", "path", path, "error", err)
		_ = os.Remove(path)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      path,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// O_EXCL loses the race against a process that created the file since
	// the check above.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := ReadLock(path); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", ErrLocked, existing.PID, existing.Hostname)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("auto-attach lock acquired", "pid", lock.PID)
	return lock, nil
}

// Release removes the lock file if it still belongs to this process. It is
// safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}

	existing, err := ReadLock(l.path)
	if err != nil || existing.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.logger.Info("auto-attach lock released")
	return nil
}

// ReadLock reads the lock file at path.
func ReadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.path = path
	return &lock, nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(context.Background(), int32(pid))
	return err == nil && ok
}
