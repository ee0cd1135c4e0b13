package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/loopfactory/fleetdash/internal/liveness"
	"github.com/loopfactory/fleetdash/internal/pipeline"
)

// Semantic colors use ANSI codes so they follow the terminal theme.
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// Utilization thresholds, in percent.
const (
	WarningThreshold  = 60.0
	CriticalThreshold = 80.0
)

// ThresholdColor maps a 0-100 value to green, yellow, or red.
func ThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= CriticalThreshold:
		return ColorError
	case percent >= WarningThreshold:
		return ColorWarning
	default:
		return ColorSuccess
	}
}

// CheckColor colors a pipeline check or stage status.
func CheckColor(s pipeline.CheckStatus) lipgloss.Color {
	switch s {
	case pipeline.StatusOK:
		return ColorSuccess
	case pipeline.StatusBlocked:
		return ColorError
	default:
		return ColorWarning
	}
}

// ActivityColor colors an activity grade.
func ActivityColor(a liveness.Activity) lipgloss.Color {
	switch a {
	case liveness.ActivityHealthy:
		return ColorSuccess
	case liveness.ActivityStagnant, liveness.ActivityIdle:
		return ColorWarning
	case liveness.ActivityWarning, liveness.ActivityCritical:
		return ColorError
	default:
		return ColorMuted
	}
}
