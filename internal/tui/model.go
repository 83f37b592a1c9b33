package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/manager"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the part of the Manager the UI drives.
type Controller interface {
	Refresh(ctx context.Context) (*manager.Snapshot, error)
	Bind(ctx context.Context, busID string, force bool) (*manager.Snapshot, error)
	Unbind(ctx context.Context, busID string) (*manager.Snapshot, error)
	Attach(ctx context.Context, busID string) (*manager.Snapshot, error)
	Detach(ctx context.Context, busID string) (*manager.Snapshot, error)
	StartAutoAttach(ctx context.Context, busID string) (*manager.Snapshot, error)
	StopAutoAttach(ctx context.Context, busID string) (*manager.Snapshot, error)
}

// Settings are the reloadable display options.
type Settings struct {
	// RefreshInterval enables periodic refresh when positive.
	RefreshInterval time.Duration
	// DescriptionWidth truncates device descriptions.
	DescriptionWidth int
}

const defaultDescriptionWidth = 48

type statusKind int

const (
	statusInfo statusKind = iota
	statusSuccess
	statusError
)

// Model is the bubbletea model of the device list.
//
// At most one operation is in flight. Each dispatch gets a sequence number
// and only the result carrying the in-flight number is applied; anything
// else has been superseded and is dropped.
type Model struct {
	ctx  context.Context
	ctrl Controller

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	settings Settings
	tickGen  int

	rows     []manager.Row
	polledAt time.Time
	cursor   int

	seq      uint64
	inflight uint64
	busyOp   operation
	busyID   string

	status     string
	statusKind statusKind
	warnings   []string

	width  int
	height int
}

// NewModel creates the device list model. ctx bounds every dispatched
// operation.
func NewModel(ctx context.Context, ctrl Controller, settings Settings) Model {
	if settings.DescriptionWidth <= 0 {
		settings.DescriptionWidth = defaultDescriptionWidth
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		keys:     defaultKeyMap(),
		help:     help.New(),
		spinner:  s,
		settings: settings,
	}
}

// Init starts the spinner, the first refresh and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return startMsg{} },
	)
}

// startMsg triggers the initial refresh from inside Update so the dispatch
// is recorded on the model.
type startMsg struct{}

// Update handles messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case startMsg:
		var cmd tea.Cmd
		m, cmd = m.dispatch(opRefresh, "")
		return m, tea.Batch(cmd, m.scheduleTick())

	case tea.KeyMsg:
		return m.handleKey(msg)

	case resultMsg:
		return m.handleResult(msg), nil

	case tickMsg:
		if msg.gen != m.tickGen {
			return m, nil
		}
		if m.busy() {
			return m, m.scheduleTick()
		}
		var cmd tea.Cmd
		m, cmd = m.dispatch(opRefresh, "")
		return m, tea.Batch(cmd, m.scheduleTick())

	case settingsMsg:
		width := msg.settings.DescriptionWidth
		if width <= 0 {
			width = m.settings.DescriptionWidth
		}
		m.settings = msg.settings
		m.settings.DescriptionWidth = width
		m.tickGen++
		return m, m.scheduleTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil
	}

	op, ok := m.operationFor(msg)
	if !ok {
		return m, nil
	}
	if m.busy() {
		m.setStatus(statusInfo, fmt.Sprintf("busy: %s in progress", m.busyLabel()))
		return m, nil
	}
	busID := ""
	if op != opRefresh {
		busID = m.selectedID()
	}
	return m.dispatch(op, busID)
}

func (m Model) operationFor(msg tea.KeyMsg) (operation, bool) {
	switch {
	case key.Matches(msg, m.keys.Refresh):
		return opRefresh, true
	case key.Matches(msg, m.keys.Bind):
		return opBind, true
	case key.Matches(msg, m.keys.ForceBind):
		return opForceBind, true
	case key.Matches(msg, m.keys.Unbind):
		return opUnbind, true
	case key.Matches(msg, m.keys.Attach):
		return opAttach, true
	case key.Matches(msg, m.keys.Detach):
		return opDetach, true
	case key.Matches(msg, m.keys.AutoStart):
		return opStartAutoAttach, true
	case key.Matches(msg, m.keys.AutoStop):
		return opStopAutoAttach, true
	}
	return 0, false
}

// dispatch runs op off the event loop and marks it in flight.
func (m Model) dispatch(op operation, busID string) (Model, tea.Cmd) {
	m.seq++
	seq := m.seq
	m.inflight = seq
	m.busyOp = op
	m.busyID = busID

	ctx, ctrl := m.ctx, m.ctrl
	return m, func() tea.Msg {
		snap, err := op.run(ctx, ctrl, busID)
		return resultMsg{seq: seq, op: op, busID: busID, snapshot: snap, err: err}
	}
}

func (m Model) handleResult(msg resultMsg) Model {
	if msg.seq != m.inflight {
		return m
	}
	m.inflight = 0

	label := msg.op.String()
	if msg.busID != "" {
		label += " " + msg.busID
	}

	if msg.err != nil {
		m.setStatus(statusError, fmt.Sprintf("%s failed: %s", label, errors.UserMessage(msg.err)))
		return m
	}

	m.applySnapshot(msg.snapshot)
	if msg.op == opRefresh {
		if m.statusKind == statusError || m.status == "" {
			m.setStatus(statusInfo, fmt.Sprintf("%d devices", len(m.rows)))
		}
	} else {
		m.setStatus(statusSuccess, label+" done")
	}
	return m
}

// applySnapshot replaces the rows, keeping the cursor on the same device
// when it is still listed.
func (m *Model) applySnapshot(snap *manager.Snapshot) {
	if snap == nil {
		return
	}
	selected := m.selectedID()
	m.rows = snap.Rows
	m.polledAt = snap.PolledAt
	m.warnings = snap.Warnings

	m.cursor = min(m.cursor, max(len(m.rows)-1, 0))
	for i, r := range m.rows {
		if r.BusID == selected {
			m.cursor = i
			break
		}
	}
}

func (m *Model) setStatus(kind statusKind, text string) {
	m.statusKind = kind
	m.status = text
}

func (m Model) scheduleTick() tea.Cmd {
	if m.settings.RefreshInterval <= 0 {
		return nil
	}
	gen := m.tickGen
	return tea.Tick(m.settings.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg{gen: gen, at: t}
	})
}

func (m Model) busy() bool {
	return m.inflight != 0
}

func (m Model) busyLabel() string {
	if m.busyID == "" {
		return m.busyOp.String()
	}
	return strings.Join([]string{m.busyOp.String(), m.busyID}, " ")
}

// selectedID returns the bus id under the cursor, or "" when the list is empty.
func (m Model) selectedID() string {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return ""
	}
	return m.rows[m.cursor].BusID
}
