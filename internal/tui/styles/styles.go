// Package styles holds the lipgloss palette shared by the interactive UI and
// the styled output of the list command.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple (violet-400)
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red (red-400)
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray (gray-500)
	BlueColor      = lipgloss.Color("#60A5FA") // Blue

	// Device state colors
	StateNotShared = MutedColor
	StateShared    = BlueColor
	StateAttached  = SecondaryColor
	StateUnknown   = WarningColor

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Table styles
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(MutedColor)

	SelectedRow = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor).
			Background(SurfaceColor)

	Cursor = lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true)

	// Content area
	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	// Status bar
	StatusBar = lipgloss.NewStyle().
			Foreground(MutedColor).
			MarginTop(1)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)
)
