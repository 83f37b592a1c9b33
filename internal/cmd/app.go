package cmd

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/usbipd-manager/internal/autoattach"
	"github.com/Iron-Ham/usbipd-manager/internal/backend"
	"github.com/Iron-Ham/usbipd-manager/internal/config"
	"github.com/Iron-Ham/usbipd-manager/internal/device"
	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
	"github.com/Iron-Ham/usbipd-manager/internal/manager"
)

// app is the set of collaborators one command invocation works with.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	runner     *backend.Runner
	supervisor *autoattach.Supervisor
	lock       *autoattach.Lock
	manager    *manager.Manager
}

// newApp loads the configuration and wires the backend, the device lister
// and the Manager. When withAutoAttach is set a Supervisor is created and
// reconciled against the persisted set while holding the auto-attach lock;
// otherwise auto-attach operations are unavailable and the persisted set is
// left alone.
func newApp(ctx context.Context, withAutoAttach bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	runner := backend.NewRunner(runnerOptions(cfg), logger)
	lister := device.NewLister(runner, logger)

	a := &app{cfg: cfg, logger: logger, runner: runner}

	// A nil *Supervisor stored in the interface would not compare equal to
	// nil inside the Manager.
	var auto manager.AutoAttacher
	if withAutoAttach {
		lock, err := autoattach.AcquireLock(autoattach.LockPath(cfg.AutoAttach.StateFilePath()), logger)
		if err != nil {
			_ = logger.Close()
			return nil, err
		}
		a.lock = lock

		a.supervisor = newSupervisor(cfg, runner, logger)
		if err := a.supervisor.Reconcile(ctx); err != nil {
			var pe *errors.PersistenceError
			if !errors.As(err, &pe) {
				a.close()
				return nil, err
			}
			logger.Warn("could not clear persisted auto-attach set", "error", err)
		}
		auto = a.supervisor
	}

	a.manager = manager.New(lister, runner, auto, managerOptions(cfg), logger)
	return a, nil
}

// close releases the auto-attach lock and the log file. It does not stop
// auto-attach loops; callers shut the Manager down first.
func (a *app) close() {
	if err := a.lock.Release(); err != nil {
		a.logger.Warn("failed to release auto-attach lock", "error", err)
	}
	_ = a.logger.Close()
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.LogDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, err
	}
	return logger, nil
}

func runnerOptions(cfg *config.Config) backend.Options {
	return backend.Options{
		Path:           cfg.Backend.Path,
		WSLTarget:      cfg.Backend.WSLTarget,
		CommandTimeout: cfg.Backend.CommandTimeout,
		ListTimeout:    cfg.Backend.ListTimeout,
		ElevateCommand: cfg.Backend.ElevateCommand,
	}
}

func managerOptions(cfg *config.Config) manager.Options {
	return manager.Options{SettleDelay: cfg.Refresh.SettleDelay}
}

func newSupervisor(cfg *config.Config, runner *backend.Runner, logger *logging.Logger) *autoattach.Supervisor {
	store := autoattach.NewStore(nil, cfg.AutoAttach.StateFilePath(), logger)
	supCfg := autoattach.Config{StopTimeout: cfg.AutoAttach.StopTimeout}
	if cfg.AutoAttach.SweepOrphans {
		supCfg.Sweeper = autoattach.NewProcessSweeper(cfg.Backend.Path, logger)
	}
	return autoattach.NewSupervisor(runner, store, supCfg, logger)
}
