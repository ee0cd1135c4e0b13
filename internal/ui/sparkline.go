package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopfactory/fleetdash/internal/reconcile"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

var sparklineBlockRunes = []rune(sparklineBlocks)

// RenderSparkline draws the last width values scaled to their own min/max
// range. The color follows the last value against the percent thresholds.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	return renderLevels(data, minVal, maxVal, ThresholdColor(data[len(data)-1]))
}

// RenderIntensity draws percentage values on a fixed 0-100 scale.
// Out-of-range values are clamped for drawing only.
func RenderIntensity(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	clamped := make([]float64, len(data))
	for i, v := range data {
		clamped[i] = reconcile.Intensity(v)
	}
	return renderLevels(clamped, 0, 100, ThresholdColor(clamped[len(clamped)-1]))
}

func renderLevels(data []float64, minVal, maxVal float64, color lipgloss.Color) string {
	var sb strings.Builder
	sb.Grow(len(data) * 3)

	numLevels := len(sparklineBlockRunes)
	valueRange := maxVal - minVal

	for _, v := range data {
		level := numLevels / 2
		if valueRange != 0 {
			level = int((v - minVal) / valueRange * float64(numLevels-1))
			if level < 0 {
				level = 0
			} else if level >= numLevels {
				level = numLevels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}

	return lipgloss.NewStyle().Foreground(color).Render(sb.String())
}
