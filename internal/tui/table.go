package tui

import (
	"strings"

	"github.com/Iron-Ham/usbipd-manager/internal/device"
	"github.com/Iron-Ham/usbipd-manager/internal/manager"
	"github.com/Iron-Ham/usbipd-manager/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// TableOptions controls RenderTable.
type TableOptions struct {
	// Cursor is the highlighted row; negative disables the cursor column.
	Cursor int
	// DescriptionWidth truncates the description column.
	DescriptionWidth int
	// ShowAutoAttach adds the auto-attach column.
	ShowAutoAttach bool
	// Styled applies colors. Plain output is used for pipes and tests.
	Styled bool
}

const (
	busIDWidth  = 8
	vidPIDWidth = 10
	stateWidth  = 11
	ellipsis    = "…"
)

// RenderTable renders rows as an aligned device table with a header line.
func RenderTable(rows []manager.Row, opts TableOptions) string {
	if opts.DescriptionWidth <= 0 {
		opts.DescriptionWidth = defaultDescriptionWidth
	}
	paint := func(s lipgloss.Style, text string) string {
		if !opts.Styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder

	header := []string{
		pad("BUSID", busIDWidth),
		pad("VID:PID", vidPIDWidth),
		pad("DEVICE", opts.DescriptionWidth),
		pad("STATE", stateWidth),
	}
	if opts.ShowAutoAttach {
		header = append(header, "AUTO")
	}
	if opts.Cursor >= 0 {
		b.WriteString("  ")
	}
	b.WriteString(paint(styles.Header, strings.TrimRight(strings.Join(header, " "), " ")))
	b.WriteString("\n")

	for i, r := range rows {
		cols := []string{
			pad(r.BusID, busIDWidth),
			pad(r.VIDPID, vidPIDWidth),
			pad(Truncate(r.Description, opts.DescriptionWidth), opts.DescriptionWidth),
			paint(lipgloss.NewStyle().Foreground(stateColor(r.State)), pad(r.State.String(), stateWidth)),
		}
		if opts.ShowAutoAttach {
			cols = append(cols, autoAttachLabel(r, paint))
		}
		line := strings.TrimRight(strings.Join(cols, " "), " ")

		if opts.Cursor >= 0 {
			if i == opts.Cursor {
				b.WriteString(paint(styles.Cursor, "> "))
				line = paint(styles.SelectedRow, line)
			} else {
				b.WriteString("  ")
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

// autoAttachLabel distinguishes a running loop from one that is still
// desired but whose process has exited.
func autoAttachLabel(r manager.Row, paint func(lipgloss.Style, string) string) string {
	switch {
	case r.AutoAttachActive && r.AutoAttachRunning:
		return paint(styles.Secondary, "on")
	case r.AutoAttachActive:
		return paint(styles.Warning, "on (exited)")
	default:
		return ""
	}
}

func stateColor(s device.State) lipgloss.Color {
	switch s {
	case device.StateNotShared:
		return styles.StateNotShared
	case device.StateShared:
		return styles.StateShared
	case device.StateAttached:
		return styles.StateAttached
	default:
		return styles.StateUnknown
	}
}

// Truncate shortens s to width terminal cells, marking the cut with an
// ellipsis. Wide runes count as two cells.
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, ellipsis)
}

func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}
