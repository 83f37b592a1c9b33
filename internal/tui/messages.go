package tui

import (
	"context"
	"time"

	"github.com/Iron-Ham/usbipd-manager/internal/manager"
)

// operation is one user-triggered Manager call.
type operation int

const (
	opRefresh operation = iota
	opBind
	opForceBind
	opUnbind
	opAttach
	opDetach
	opStartAutoAttach
	opStopAutoAttach
)

func (o operation) String() string {
	switch o {
	case opRefresh:
		return "refresh"
	case opBind:
		return "bind"
	case opForceBind:
		return "force bind"
	case opUnbind:
		return "unbind"
	case opAttach:
		return "attach"
	case opDetach:
		return "detach"
	case opStartAutoAttach:
		return "start auto-attach"
	case opStopAutoAttach:
		return "stop auto-attach"
	default:
		return "unknown"
	}
}

// run performs o against c.
func (o operation) run(ctx context.Context, c Controller, busID string) (*manager.Snapshot, error) {
	switch o {
	case opBind:
		return c.Bind(ctx, busID, false)
	case opForceBind:
		return c.Bind(ctx, busID, true)
	case opUnbind:
		return c.Unbind(ctx, busID)
	case opAttach:
		return c.Attach(ctx, busID)
	case opDetach:
		return c.Detach(ctx, busID)
	case opStartAutoAttach:
		return c.StartAutoAttach(ctx, busID)
	case opStopAutoAttach:
		return c.StopAutoAttach(ctx, busID)
	default:
		return c.Refresh(ctx)
	}
}

// resultMsg carries the outcome of a dispatched operation back to Update.
type resultMsg struct {
	seq      uint64
	op       operation
	busID    string
	snapshot *manager.Snapshot
	err      error
}

// tickMsg drives periodic refresh. gen identifies the ticker that produced
// it so a ticker replaced by a settings change stops on its next tick.
type tickMsg struct {
	gen int
	at  time.Time
}

// settingsMsg applies reloaded configuration to a running program.
type settingsMsg struct {
	settings Settings
}
