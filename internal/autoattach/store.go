// Package autoattach supervises the background auto-attach loops and keeps
// the set of devices that should have one on disk.
//
// The Supervisor's map is the only record of which devices are tracked. The
// Store mirrors the desired set so that a crash leaves enough behind for the
// next run to clean up after it. Processes themselves are never persisted,
// so every id found at startup is stale by definition.
package autoattach

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// DefaultStateFile is the file name of the persisted desired set.
const DefaultStateFile = "auto_attach.json"

// stateFile is the on-disk document.
type stateFile struct {
	Devices []string `json:"auto_attach_devices"`
}

// Store loads and saves the desired auto-attach set.
type Store struct {
	fs     afero.Fs
	path   string
	logger *logging.Logger
}

// NewStore creates a Store backed by fs. A nil fs uses the OS filesystem.
func NewStore(fs afero.Fs, path string, logger *logging.Logger) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{
		fs:     fs,
		path:   path,
		logger: logging.OrNop(logger).WithComponent("autoattach-store"),
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted set. A missing or unreadable file is an empty
// set; only the reason is logged.
func (s *Store) Load() []string {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read auto-attach state", "path", s.path, "error", err)
		}
		return nil
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("ignoring corrupt auto-attach state", "path", s.path, "error", err)
		return nil
	}
	return normalize(state.Devices)
}

// Save replaces the persisted set. The write goes to a temp file in the same
// directory which is then renamed over the old state. Failures are returned
// as *errors.PersistenceError.
func (s *Store) Save(ids []string) error {
	data, err := json.MarshalIndent(stateFile{Devices: normalize(ids)}, "", "  ")
	if err != nil {
		return errors.NewPersistenceError(s.path, err)
	}
	data = append(data, '\n')

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.NewPersistenceError(s.path, fmt.Errorf("failed to create state directory: %w", err))
	}
	if err := s.atomicWriteFile(data, 0o644); err != nil {
		s.logger.Warn("failed to save auto-attach state", "path", s.path, "error", err)
		return errors.NewPersistenceError(s.path, err)
	}
	s.logger.Debug("saved auto-attach state", "path", s.path, "devices", len(ids))
	return nil
}

func (s *Store) atomicWriteFile(data []byte, perm os.FileMode) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(s.path), ".tmp-"+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = s.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// normalize drops empty ids and duplicates and sorts the rest.
func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
