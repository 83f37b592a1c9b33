package tui

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/usbipd-manager/internal/tui/styles"
)

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		if m.polledAt.IsZero() {
			b.WriteString(styles.Muted.Render("Loading devices..."))
		} else {
			b.WriteString(styles.Muted.Render("No USB devices found."))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(RenderTable(m.rows, TableOptions{
			Cursor:           m.cursor,
			DescriptionWidth: m.settings.DescriptionWidth,
			ShowAutoAttach:   true,
			Styled:           true,
		}))
	}

	b.WriteString(m.renderStatus())
	b.WriteString(styles.HelpBar.Render(m.help.View(m.keys)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderHeader() string {
	header := styles.Title.Render("usbipd-manager")
	if !m.polledAt.IsZero() {
		header += "  " + styles.Subtitle.Render("updated "+m.polledAt.Format("15:04:05"))
	}
	if m.busy() {
		header += "  " + m.spinner.View() + " " + styles.Muted.Render(m.busyLabel()+"...")
	}
	return header
}

func (m Model) renderStatus() string {
	var lines []string
	if m.status != "" {
		switch m.statusKind {
		case statusError:
			lines = append(lines, styles.Error.Render(m.status))
		case statusSuccess:
			lines = append(lines, styles.Secondary.Render(m.status))
		default:
			lines = append(lines, styles.Muted.Render(m.status))
		}
	}
	for _, w := range m.warnings {
		lines = append(lines, styles.Warning.Render(fmt.Sprintf("warning: %s", w)))
	}
	if len(lines) == 0 {
		return ""
	}
	return styles.StatusBar.Render(strings.Join(lines, "\n")) + "\n"
}
