package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/pipeline"
)

// TrendWidth is the sparkline width used in tables.
const TrendWidth = 12

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a new Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{
			Title: c.Title,
			Width: c.Width,
		}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.
		Foreground(ColorPrimary)
	s.Selected = s.Selected.
		Foreground(ColorPrimary).
		Background(ColorMuted).
		Bold(false)

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}

	return NewTable(columns, tableRows).View()
}

// GPUColumns are the columns of the device table.
var GPUColumns = []TableColumn{
	{Title: "NODE", Width: 14},
	{Title: "GPU", Width: 22},
	{Title: "UTIL", Width: 6},
	{Title: "MEM", Width: 6},
	{Title: "TEMP", Width: 6},
	{Title: "POWER", Width: 8},
	{Title: "TREND", Width: TrendWidth},
}

// GPURow formats one device as table cells.
func GPURow(g fleet.GPU) []string {
	name := g.DisplayName
	if g.Stale {
		name = SymbolStale + " " + name
	}
	return []string{
		g.GroupKey,
		name,
		percentCell(g.Value("utilization")),
		percentCell(g.Value("memory_percent")),
		unitCell(g.Value("temperature"))("%.0f°C"),
		unitCell(g.Value("power"))("%.0fW"),
		RenderIntensity(g.Sparklines["utilization"], TrendWidth),
	}
}

// RenderGPUTable renders device rows.
func RenderGPUTable(gpus []fleet.GPU) string {
	if len(gpus) == 0 {
		return mutedText("No GPUs reported")
	}
	rows := make([][]string, len(gpus))
	for i, g := range gpus {
		rows[i] = GPURow(g)
	}
	return RenderSimpleTable(GPUColumns, rows)
}

// AgentColumns are the columns of the agent table.
var AgentColumns = []TableColumn{
	{Title: "", Width: 2},
	{Title: "NODE", Width: 14},
	{Title: "AGENT", Width: 20},
	{Title: "STATUS", Width: 10},
	{Title: "ACTIVITY", Width: 10},
	{Title: "HEARTBEAT", Width: 10},
	{Title: "BUCKS", Width: 10},
	{Title: "TREND", Width: TrendWidth},
}

// AgentRow formats one agent as table cells. now drives the heartbeat age.
func AgentRow(a fleet.AgentRow, now time.Time) []string {
	symbol := lipgloss.NewStyle().Foreground(ColorMuted).Render(SymbolPending)
	switch {
	case a.Stale:
		symbol = lipgloss.NewStyle().Foreground(ColorMuted).Render(SymbolStale)
	case a.State.Starving:
		symbol = lipgloss.NewStyle().Foreground(ColorError).Render(SymbolStarving)
	case a.State.Running:
		symbol = lipgloss.NewStyle().Foreground(ColorSuccess).Render(SymbolRunning)
	}

	activity := lipgloss.NewStyle().Foreground(ActivityColor(a.Activity)).Render(string(a.Activity))

	return []string{
		symbol,
		a.Agent.Node(),
		a.Agent.Label(),
		string(a.Agent.Status),
		activity,
		HeartbeatAge(a.Agent.LastHeartbeat, now),
		fmt.Sprintf("%.0f", a.Agent.Bucks),
		RenderSparkline(a.Sparkline, TrendWidth),
	}
}

// RenderAgentTable renders agent rows.
func RenderAgentTable(rows []fleet.AgentRow, now time.Time) string {
	if len(rows) == 0 {
		return mutedText("No agents")
	}
	cells := make([][]string, len(rows))
	for i, a := range rows {
		cells[i] = AgentRow(a, now)
	}
	return RenderSimpleTable(AgentColumns, cells)
}

// HeartbeatAge renders how long ago a heartbeat was, or "never".
func HeartbeatAge(hb *time.Time, now time.Time) string {
	if hb == nil {
		return "never"
	}
	age := now.Sub(*hb)
	switch {
	case age < 0:
		return "now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

// RenderSystem renders the aggregate status block.
func RenderSystem(s *fleet.SystemStatus) string {
	if s == nil {
		return mutedText("No system status")
	}
	label := lipgloss.NewStyle().Foreground(ColorMuted).Width(12)

	var b strings.Builder
	line := func(name, value string) {
		b.WriteString(label.Render(name) + value + "\n")
	}

	line("CPU", gaugeCell(s.CPUPercent))
	line("Memory", gaugeCell(s.MemPercent))
	line("Agents", fmt.Sprintf("%d total, %d active, %d pending, %d waiting", s.Total, s.Active, s.Pending, s.Waiting))
	line("Running", fmt.Sprintf("%d running, %d starving", s.Running, s.Starving))
	line("Bucks", fmt.Sprintf("%.0f", s.TotalBucks))
	line("Scheduler", fmt.Sprintf("%d jobs, %d in flight", s.Counters.JobCount, s.Counters.Inflight))

	admit := lipgloss.NewStyle().Foreground(ColorSuccess).Render(SymbolSuccess + " can run another agent")
	if !s.CanRunAgent {
		admit = lipgloss.NewStyle().Foreground(ColorError).Render(SymbolFail + " pipeline bottleneck")
	}
	line("Pipeline", admit)

	return b.String()
}

// RenderSummary renders the activity counts, the agents needing
// attention, and the bucks leaderboard.
func RenderSummary(s *fleet.AgentSummary) string {
	if s == nil {
		return mutedText("No activity summary")
	}
	label := lipgloss.NewStyle().Foreground(ColorMuted).Width(12)

	counts := make([]string, 0, len(fleet.ActivityOrder))
	for _, a := range fleet.ActivityOrder {
		n := s.Activity[a]
		if n == 0 {
			continue
		}
		counts = append(counts, lipgloss.NewStyle().Foreground(ActivityColor(a)).Render(
			fmt.Sprintf("%d %s", n, strings.ToLower(string(a)))))
	}
	if len(counts) == 0 {
		counts = append(counts, mutedText("no active agents"))
	}

	var b strings.Builder
	b.WriteString(label.Render("Activity") + strings.Join(counts, ", ") + "\n")

	if len(s.Alerts) == 0 {
		b.WriteString(label.Render("Alerts") + lipgloss.NewStyle().Foreground(ColorSuccess).Render(SymbolSuccess+" none") + "\n")
	} else {
		b.WriteString(label.Render("Alerts") + fmt.Sprintf("%d agent(s) need attention", len(s.Alerts)) + "\n")
		for _, a := range s.Alerts {
			b.WriteString("    " + lipgloss.NewStyle().Foreground(ActivityColor(a.Activity)).Render(SymbolWarning+" "+padRight(string(a.Activity), 9)) +
				" " + a.Label + mutedText(" ("+a.AgentID+")") + "\n")
		}
	}

	if len(s.Leaderboard) > 0 {
		cells := make([][]string, len(s.Leaderboard))
		for i, e := range s.Leaderboard {
			cells[i] = []string{
				fmt.Sprintf("%d", e.Rank),
				e.Label,
				string(e.Status),
				fmt.Sprintf("%.0f", e.Bucks),
				fmt.Sprintf("%d", e.Followers),
			}
		}
		b.WriteString("\n" + RenderSimpleTable(LeaderboardColumns, cells))
	}
	return b.String()
}

// LeaderboardColumns are the columns of the bucks leaderboard.
var LeaderboardColumns = []TableColumn{
	{Title: "#", Width: 4},
	{Title: "AGENT", Width: 20},
	{Title: "STATUS", Width: 10},
	{Title: "BUCKS", Width: 10},
	{Title: "FOLLOWERS", Width: 10},
}

// RenderPipeline renders each stage and its checks in order.
func RenderPipeline(v *pipeline.Verdict) string {
	if v == nil || len(v.Stages) == 0 {
		return mutedText("No pipeline stages")
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)

	var b strings.Builder
	for _, st := range v.Stages {
		name := st.Label
		if name == "" {
			name = st.Name
		}
		b.WriteString(statusGlyph(st.Status) + " " + header.Render(name) + "\n")
		for _, c := range st.Checks {
			value := fmt.Sprintf("%g", c.Current)
			if c.Threshold != nil {
				value += fmt.Sprintf(" / %g", *c.Threshold)
			}
			b.WriteString("    " + statusGlyph(c.Status) + " " + padRight(c.Name, 24) + muted.Render(value))
			if c.Detail != "" {
				b.WriteString("  " + muted.Render(c.Detail))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderFailures lists a cycle's fetch failures.
func RenderFailures(failures []errors.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	style := lipgloss.NewStyle().Foreground(ColorWarning)
	var b strings.Builder
	for _, f := range failures {
		b.WriteString(style.Render(SymbolWarning+" "+f.String()) + "\n")
	}
	return b.String()
}

// RenderSnapshot renders one view snapshot with its failures underneath.
func RenderSnapshot(s fleet.Snapshot, now time.Time) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(ColorSecondary).Render(strings.ToUpper(s.View))

	var body string
	switch s.View {
	case fleet.ViewGPUs:
		body = RenderGPUTable(s.GPUs)
	case fleet.ViewAgents:
		body = RenderAgentTable(s.Agents, now)
		if s.Summary != nil {
			body += "\n\n" + strings.TrimRight(RenderSummary(s.Summary), "\n")
		}
		if s.Pipeline != nil {
			body += "\n\n" + RenderPipeline(s.Pipeline)
		}
	case fleet.ViewSystem:
		body = RenderSystem(s.System)
	}

	out := title + "\n" + body + "\n"
	if f := RenderFailures(s.Errors); f != "" {
		out += f
	}
	return out
}

func statusGlyph(s pipeline.CheckStatus) string {
	symbol := SymbolSuccess
	switch s {
	case pipeline.StatusBlocked:
		symbol = SymbolFail
	case pipeline.StatusWarning:
		symbol = SymbolWarning
	}
	return lipgloss.NewStyle().Foreground(CheckColor(s)).Render(symbol)
}

func percentCell(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return lipgloss.NewStyle().Foreground(ThresholdColor(v)).Render(fmt.Sprintf("%.0f%%", v))
}

func unitCell(v float64, ok bool) func(format string) string {
	return func(format string) string {
		if !ok {
			return "-"
		}
		return fmt.Sprintf(format, v)
	}
}

func gaugeCell(p *float64) string {
	if p == nil {
		return "-"
	}
	return percentCell(*p, true)
}

func mutedText(s string) string {
	return lipgloss.NewStyle().Foreground(ColorMuted).Render(s)
}

// padRight pads s to width visible cells.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
