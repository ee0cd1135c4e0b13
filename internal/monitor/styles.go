package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopfactory/fleetdash/internal/reconcile"
	"github.com/loopfactory/fleetdash/internal/ui"
)

// Base styles for the dashboard
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.ColorInfo).
			Bold(true)

	TabStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(ui.ColorPrimary).
			Bold(true).
			Underline(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ui.ColorWarning)
)

// ThinProgressBar renders a line-based gauge on a fixed 0-100 scale.
// Uses ━ for filled segments and ─ for empty segments.
func ThinProgressBar(width int, percent float64) string {
	if width < 1 {
		width = 1
	}
	percent = reconcile.Intensity(percent)

	filled := int(percent / 100.0 * float64(width))
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
	return lipgloss.NewStyle().Foreground(ui.ThresholdColor(percent)).Render(bar)
}

// SectionHeader renders a section header with the title on the left and value on the right.
// Format: ╭─ Title ────────────────────────────────────── Value ╮
func SectionHeader(title, value string, width int) string {
	if width < 10 {
		width = 10
	}

	leftWidth := 3 + lipgloss.Width(title) + 1
	rightWidth := 1 + lipgloss.Width(value) + 2

	fillWidth := width - leftWidth - rightWidth
	if fillWidth < 1 {
		fillWidth = 1
	}

	borderStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	valueStyle := lipgloss.NewStyle().Foreground(ui.ColorInfo)

	return borderStyle.Render("╭─ ") +
		TitleStyle.Render(title) +
		borderStyle.Render(" "+strings.Repeat("─", fillWidth)+" ") +
		valueStyle.Render(value) +
		borderStyle.Render(" ╮")
}

// SectionFooter renders the bottom border of a section.
func SectionFooter(width int) string {
	if width < 2 {
		width = 2
	}
	return lipgloss.NewStyle().Foreground(ui.ColorMuted).Render("╰" + strings.Repeat("─", width-2) + "╯")
}

// SectionContentLine renders a content line with left and right borders, padded to width.
// Content wider than the section is cut.
func SectionContentLine(content string, width int) string {
	if width < 4 {
		width = 4
	}
	borderStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)

	innerWidth := width - 4
	content = lipgloss.NewStyle().MaxWidth(innerWidth).Render(content)
	padding := innerWidth - lipgloss.Width(content)
	if padding < 0 {
		padding = 0
	}

	return borderStyle.Render("│") + " " + content + strings.Repeat(" ", padding) + " " + borderStyle.Render("│")
}
