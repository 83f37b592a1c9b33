// Package device turns the backend's `list` output into device records.
//
// The backend prints a table whose description column is free text with no
// delimiter before the state column, so the parser relies on a fixed set of
// state prefixes to find where the description ends. All knowledge of that
// format lives in this package.
package device

import "strings"

// State is the sharing state of a device as reported by the backend.
type State int

const (
	// StateUnknown means the state column was absent or unrecognized.
	StateUnknown State = iota
	// StateNotShared means the device is visible but not bound for sharing.
	StateNotShared
	// StateShared means the device is bound and may be attached.
	StateShared
	// StateAttached means the device is attached to the guest.
	StateAttached
)

// String returns the display name used by the backend for the state.
func (s State) String() string {
	switch s {
	case StateNotShared:
		return "Not shared"
	case StateShared:
		return "Shared"
	case StateAttached:
		return "Attached"
	default:
		return "Unknown"
	}
}

// ParseState classifies the raw state text of a list row.
// "Shared (forced)" is Shared; "Attached - <distro>" from older backends is Attached.
func ParseState(raw string) State {
	s := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	switch {
	case s == "not shared":
		return StateNotShared
	case s == "shared", s == "shared (forced)":
		return StateShared
	case s == "attached", strings.HasPrefix(s, "attached -"):
		return StateAttached
	default:
		return StateUnknown
	}
}

// Record is one device row from a single list poll. Records are never
// mutated; each poll produces a fresh slice.
type Record struct {
	BusID       string
	VIDPID      string
	Description string
	State       State
	// RawState is the unclassified state text, empty when absent.
	RawState string
}

// Find returns the record with the given bus id.
func Find(records []Record, busID string) (Record, bool) {
	for _, r := range records {
		if r.BusID == busID {
			return r, true
		}
	}
	return Record{}, false
}
