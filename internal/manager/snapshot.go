package manager

import (
	"time"

	"github.com/Iron-Ham/usbipd-manager/internal/device"
)

// Row is one display-ready device.
type Row struct {
	BusID       string
	VIDPID      string
	Description string
	State       device.State
	// AutoAttachActive is membership in the desired set. It stays true for a
	// loop that has died until the user stops it.
	AutoAttachActive bool
	// AutoAttachRunning is true when the tracked loop is alive.
	AutoAttachRunning bool
}

// Snapshot is the render payload of one operation.
type Snapshot struct {
	Rows     []Row
	Warnings []string
	PolledAt time.Time
}

// Find returns the row for busID.
func (s *Snapshot) Find(busID string) (Row, bool) {
	if s == nil {
		return Row{}, false
	}
	for _, r := range s.Rows {
		if r.BusID == busID {
			return r, true
		}
	}
	return Row{}, false
}

func (m *Manager) snapshotLocked(warnings []string) *Snapshot {
	rows := make([]Row, 0, len(m.last))
	for _, rec := range m.last {
		row := Row{
			BusID:       rec.BusID,
			VIDPID:      rec.VIDPID,
			Description: rec.Description,
			State:       rec.State,
		}
		if m.auto != nil {
			row.AutoAttachActive = m.auto.IsDesired(rec.BusID)
			row.AutoAttachRunning = row.AutoAttachActive && m.auto.IsRunning(rec.BusID)
		}
		rows = append(rows, row)
	}
	return &Snapshot{Rows: rows, Warnings: warnings, PolledAt: m.polledAt}
}
