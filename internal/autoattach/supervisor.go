package autoattach

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/usbipd-manager/internal/backend"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// DefaultStopTimeout bounds how long Stop waits for a loop to exit before
// it is killed, and again after the kill.
const DefaultStopTimeout = 5 * time.Second

// Spawner starts auto-attach loops. *backend.Runner satisfies it.
type Spawner interface {
	SpawnAutoAttach(ctx context.Context, busID string) (backend.Process, error)
}

// Entry is a snapshot of one tracked device.
type Entry struct {
	BusID     string
	PID       int
	Running   bool
	StartedAt time.Time
}

type entry struct {
	proc      backend.Process
	startedAt time.Time
}

// Config holds Supervisor settings.
type Config struct {
	StopTimeout time.Duration
	// Sweeper, when set, terminates loops left over from an earlier run
	// during Reconcile.
	Sweeper Sweeper
}

// Supervisor owns the auto-attach process handles. Map presence is the
// desired set: an entry whose process has died stays desired until it is
// stopped explicitly. Every mutation rewrites the Store before returning.
type Supervisor struct {
	spawner Spawner
	store   *Store
	cfg     Config
	logger  *logging.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewSupervisor creates a Supervisor. Call Reconcile once before use.
func NewSupervisor(spawner Spawner, store *Store, cfg Config, logger *logging.Logger) *Supervisor {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Supervisor{
		spawner: spawner,
		store:   store,
		cfg:     cfg,
		logger:  logging.OrNop(logger).WithComponent("supervisor"),
		entries: make(map[string]*entry),
	}
}

// Reconcile discards state left by a previous run. Ids in the persisted set
// have no live handle in this process, so each one is forgotten (and its
// orphaned loop terminated when a Sweeper is configured) and the persisted
// set is cleared. Nothing is restarted.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := s.store.Load()
	for _, id := range stale {
		s.logger.Info("discarding stale auto-attach entry", "bus_id", id)
		if e, ok := s.entries[id]; ok {
			s.stopEntry(id, e)
			delete(s.entries, id)
		}
	}

	if s.cfg.Sweeper != nil && len(stale) > 0 {
		n, err := s.cfg.Sweeper.Sweep(ctx, stale)
		if err != nil {
			s.logger.Warn("orphan sweep failed", "error", err)
		} else if n > 0 {
			s.logger.Info("orphan sweep finished", "terminated", n)
		}
	}

	return s.persistLocked()
}

// Start spawns the auto-attach loop for busID. It is a no-op when a live
// loop is already tracked. A tracked loop that has died is replaced. On
// spawn failure nothing is recorded. A non-nil error after a successful
// spawn is a *errors.PersistenceError; the loop stays tracked.
func (s *Supervisor) Start(ctx context.Context, busID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithDevice(busID)
	if e, ok := s.entries[busID]; ok {
		if !e.proc.Exited() {
			logger.Info("auto-attach already running", "pid", e.proc.PID())
			return nil
		}
		logger.Info("replacing exited auto-attach", "pid", e.proc.PID())
	}

	proc, err := s.spawner.SpawnAutoAttach(ctx, busID)
	if err != nil {
		logger.Error("failed to start auto-attach", "error", err)
		return err
	}
	s.entries[busID] = &entry{proc: proc, startedAt: time.Now()}
	logger.Info("auto-attach tracked", "pid", proc.PID())

	return s.persistLocked()
}

// Stop terminates the loop for busID and forgets it. Stopping an untracked
// device is a no-op. A loop that does not exit in time is logged and still
// forgotten.
func (s *Supervisor) Stop(busID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[busID]
	if !ok {
		s.logger.WithDevice(busID).Info("auto-attach not tracked, nothing to stop")
		return nil
	}
	s.stopEntry(busID, e)
	delete(s.entries, busID)

	return s.persistLocked()
}

// ShutdownAll stops every tracked loop in parallel. It is safe to call more
// than once.
func (s *Supervisor) ShutdownAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil
	}

	var wg conc.WaitGroup
	for id, e := range s.entries {
		wg.Go(func() {
			s.stopEntry(id, e)
		})
	}
	wg.Wait()

	s.logger.Info("stopped all auto-attach loops", "count", len(s.entries))
	clear(s.entries)
	return s.persistLocked()
}

func (s *Supervisor) stopEntry(busID string, e *entry) {
	logger := s.logger.WithDevice(busID)
	if e.proc.Exited() {
		logger.Debug("auto-attach already exited", "pid", e.proc.PID())
		return
	}
	if err := e.proc.Stop(s.cfg.StopTimeout); err != nil {
		logger.Warn("auto-attach did not stop cleanly", "pid", e.proc.PID(), "error", err)
		return
	}
	logger.Info("auto-attach stopped", "pid", e.proc.PID())
}

func (s *Supervisor) persistLocked() error {
	return s.store.Save(s.desiredLocked())
}

func (s *Supervisor) desiredLocked() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IsDesired reports whether busID is tracked.
func (s *Supervisor) IsDesired(busID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[busID]
	return ok
}

// IsRunning reports whether busID is tracked and its loop is alive.
func (s *Supervisor) IsRunning(busID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[busID]
	return ok && !e.proc.Exited()
}

// Desired returns the tracked ids in sorted order.
func (s *Supervisor) Desired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desiredLocked()
}

// Entries returns a snapshot of every tracked device, sorted by bus id.
func (s *Supervisor) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Entry{
			BusID:     id,
			PID:       e.proc.PID(),
			Running:   !e.proc.Exited(),
			StartedAt: e.startedAt,
		})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.BusID, b.BusID)
	})
	return out
}
