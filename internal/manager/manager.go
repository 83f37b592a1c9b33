// Package manager runs the refresh cycle: it polls the backend, merges the
// result with the auto-attach supervisor's tracked set, and applies the
// device-state policy before any mutating command reaches the backend.
//
// A Manager serializes every operation. A refresh triggered by one command
// finishes before the next command starts, so results are always returned in
// the order the operations were issued.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/usbipd-manager/internal/device"
	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// DefaultSettleDelay is the pause between a mutating command and the re-poll.
const DefaultSettleDelay = time.Second

// Lister polls the backend for devices.
type Lister interface {
	List(ctx context.Context) ([]device.Record, error)
}

// Commander issues one-shot backend commands.
type Commander interface {
	Bind(ctx context.Context, busID string, force bool) error
	Unbind(ctx context.Context, busID string) error
	Attach(ctx context.Context, busID string) error
	Detach(ctx context.Context, busID string) error
}

// AutoAttacher tracks auto-attach loops.
type AutoAttacher interface {
	Start(ctx context.Context, busID string) error
	Stop(busID string) error
	ShutdownAll() error
	IsDesired(busID string) bool
	IsRunning(busID string) bool
}

// Options configures a Manager.
type Options struct {
	SettleDelay time.Duration
}

// Manager is the single owner of the refresh cycle.
type Manager struct {
	lister    Lister
	commander Commander
	auto      AutoAttacher
	logger    *logging.Logger

	mu          sync.Mutex
	settleDelay time.Duration
	last        []device.Record
	polledAt    time.Time
	polled      bool
}

// New creates a Manager. auto may be nil, in which case auto-attach
// operations are rejected and no row is marked active.
func New(lister Lister, commander Commander, auto AutoAttacher, opts Options, logger *logging.Logger) *Manager {
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &Manager{
		lister:      lister,
		commander:   commander,
		auto:        auto,
		settleDelay: opts.SettleDelay,
		logger:      logging.OrNop(logger).WithComponent("manager"),
	}
}

// ApplySettings updates timings on a running Manager.
func (m *Manager) ApplySettings(opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opts.SettleDelay >= 0 {
		m.settleDelay = opts.SettleDelay
	}
}

// Refresh polls the backend. On failure the error is returned and the last
// successful poll is kept for the next render.
func (m *Manager) Refresh(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pollLocked(ctx); err != nil {
		return nil, err
	}
	return m.snapshotLocked(nil), nil
}

// Current renders the last successful poll without polling.
func (m *Manager) Current() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(nil)
}

// Bind shares a device that is not shared yet.
func (m *Manager) Bind(ctx context.Context, busID string, force bool) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.gateLocked(ctx, "bind", busID, device.StateNotShared, device.StateUnknown); err != nil {
		return nil, err
	}
	if err := m.commander.Bind(ctx, busID, force); err != nil {
		return nil, err
	}
	return m.settleLocked(ctx, nil), nil
}

// Unbind stops sharing a device, stopping its auto-attach loop first.
func (m *Manager) Unbind(ctx context.Context, busID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.gateLocked(ctx, "unbind", busID, device.StateShared, device.StateAttached); err != nil {
		return nil, err
	}

	var warnings []string
	if m.auto != nil && m.auto.IsDesired(busID) {
		m.logger.WithDevice(busID).Info("stopping auto-attach before unbind")
		if err := m.auto.Stop(busID); err != nil {
			w, fatal := m.classifyLocked(err)
			if fatal {
				return nil, err
			}
			warnings = append(warnings, w)
		}
	}

	if err := m.commander.Unbind(ctx, busID); err != nil {
		return nil, err
	}
	return m.settleLocked(ctx, warnings), nil
}

// Attach attaches a shared device to the guest once.
func (m *Manager) Attach(ctx context.Context, busID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.gateLocked(ctx, "attach", busID, device.StateShared); err != nil {
		return nil, err
	}
	if err := m.commander.Attach(ctx, busID); err != nil {
		return nil, err
	}
	return m.settleLocked(ctx, nil), nil
}

// Detach detaches a device. Any selected device may be detached.
func (m *Manager) Detach(ctx context.Context, busID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := requireSelection(busID); err != nil {
		return nil, err
	}
	if err := m.commander.Detach(ctx, busID); err != nil {
		return nil, err
	}
	return m.settleLocked(ctx, nil), nil
}

// StartAutoAttach starts the auto-attach loop of a shared device.
func (m *Manager) StartAutoAttach(ctx context.Context, busID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAutoAttach(); err != nil {
		return nil, err
	}
	if _, err := m.gateLocked(ctx, "auto-attach", busID, device.StateShared); err != nil {
		return nil, err
	}

	var warnings []string
	if err := m.auto.Start(ctx, busID); err != nil {
		w, fatal := m.classifyLocked(err)
		if fatal {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return m.settleLocked(ctx, warnings), nil
}

// StopAutoAttach stops the auto-attach loop of a device.
func (m *Manager) StopAutoAttach(ctx context.Context, busID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAutoAttach(); err != nil {
		return nil, err
	}
	if err := requireSelection(busID); err != nil {
		return nil, err
	}

	var warnings []string
	if err := m.auto.Stop(busID); err != nil {
		w, fatal := m.classifyLocked(err)
		if fatal {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return m.settleLocked(ctx, warnings), nil
}

// Shutdown stops every auto-attach loop. It is called once on exit.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.auto == nil {
		return nil
	}
	return m.auto.ShutdownAll()
}

func (m *Manager) pollLocked(ctx context.Context) error {
	records, err := m.lister.List(ctx)
	if err != nil {
		m.logger.Warn("device poll failed, keeping previous list", "error", err)
		return err
	}
	m.last = records
	m.polledAt = time.Now()
	m.polled = true
	m.logger.Debug("device poll complete", "devices", len(records))
	return nil
}

// gateLocked checks busID against the last poll, polling first when there
// has been none. Rejections never reach the backend.
func (m *Manager) gateLocked(ctx context.Context, action, busID string, allowed ...device.State) (device.Record, error) {
	if err := requireSelection(busID); err != nil {
		return device.Record{}, err
	}
	if !m.polled {
		if err := m.pollLocked(ctx); err != nil {
			return device.Record{}, err
		}
	}

	rec, ok := device.Find(m.last, busID)
	if !ok {
		return device.Record{}, errors.NewNotFoundError("device", busID)
	}
	for _, s := range allowed {
		if rec.State == s {
			return rec, nil
		}
	}

	m.logger.WithDevice(busID).Info("operation rejected by device state",
		"action", action, "state", rec.State.String())
	return device.Record{}, errors.NewPolicyError(action, busID, rec.State.String())
}

// settleLocked waits for the backend to catch up and re-polls. A failed
// re-poll does not fail the command that preceded it; the previous list is
// returned with a warning.
func (m *Manager) settleLocked(ctx context.Context, warnings []string) *Snapshot {
	if err := sleepCtx(ctx, m.settleDelay); err != nil {
		return m.snapshotLocked(append(warnings, "refresh skipped: "+err.Error()))
	}
	if err := m.pollLocked(ctx); err != nil {
		return m.snapshotLocked(append(warnings, "refresh failed: "+errors.UserMessage(err)))
	}
	return m.snapshotLocked(warnings)
}

// classifyLocked splits supervisor errors into warnings (the mutation took
// effect in memory) and failures.
func (m *Manager) classifyLocked(err error) (string, bool) {
	var pe *errors.PersistenceError
	if errors.As(err, &pe) {
		m.logger.Warn("auto-attach state not saved", "path", pe.Path, "error", err)
		return err.Error(), false
	}
	return "", true
}

func (m *Manager) requireAutoAttach() error {
	if m.auto == nil {
		return errors.Wrap(errors.ErrInvalidInput, "auto-attach is not available in this mode")
	}
	return nil
}

func requireSelection(busID string) error {
	if busID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "no device selected")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
