package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/ui"
)

// gaugeWidth is the width of the CPU and memory bars on the system tab.
const gaugeWidth = 30

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderBody())

	if m.logPane {
		b.WriteString("\n")
		b.WriteString(m.renderLogPane())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader renders the title, the tabs, and the age of the newest snapshot.
func (m Model) renderHeader() string {
	tabs := make([]string, len(fleet.ViewNames))
	for i, name := range fleet.ViewNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if s, ok := m.snapshots[name]; ok && s.Degraded() {
			label += " " + ui.SymbolWarning
		}
		if i == m.tab {
			tabs[i] = ActiveTabStyle.Render(label)
		} else {
			tabs[i] = TabStyle.Render(label)
		}
	}

	updated := "waiting for data"
	if !m.lastUpdate.IsZero() {
		switch secs := m.SecondsSinceUpdate(); secs {
		case 0:
			updated = "updated just now"
		default:
			updated = fmt.Sprintf("updated %ds ago", secs)
		}
	}

	return HeaderStyle.Render(TitleStyle.Render("fleetdash") + " " +
		strings.Join(tabs, "") + LabelStyle.Render(" | "+updated))
}

// renderBody renders the visible tab with its failures underneath.
func (m Model) renderBody() string {
	view := m.CurrentView()
	snap, ok := m.snapshots[view]
	if !ok {
		return LabelStyle.Render("Waiting for the first " + view + " refresh...")
	}

	var body string
	switch view {
	case fleet.ViewGPUs:
		body = m.renderGPUs()
	case fleet.ViewAgents:
		body = m.renderAgents()
	case fleet.ViewSystem:
		body = m.renderSystem(snap)
	}

	if f := ui.RenderFailures(snap.Errors); f != "" {
		body += "\n" + strings.TrimRight(f, "\n")
	}
	return body
}

func (m Model) renderGPUs() string {
	gpus := m.GPURows()
	if len(gpus) == 0 {
		return LabelStyle.Render("No GPUs reported")
	}
	rows := make([]table.Row, len(gpus))
	for i, g := range gpus {
		rows[i] = ui.GPURow(g)
	}
	return m.renderTable(ui.GPUColumns, rows)
}

func (m Model) renderAgents() string {
	agentRows := m.AgentRows()
	if len(agentRows) == 0 {
		return LabelStyle.Render("No agents")
	}
	now := m.now()
	rows := make([]table.Row, len(agentRows))
	for i, a := range agentRows {
		rows[i] = ui.AgentRow(a, now)
	}
	out := m.renderTable(ui.AgentColumns, rows)

	if v := m.snapshots[fleet.ViewAgents].Pipeline; v != nil {
		if st, blocked := v.FirstBlocked(); blocked {
			out += "\n" + lipgloss.NewStyle().Foreground(ui.ColorError).Render(
				fmt.Sprintf("%s bottleneck at %s: %s", ui.SymbolFail, st.Name, strings.Join(st.Blocked, ", ")))
		}
	}
	return out
}

func (m Model) renderSystem(snap fleet.Snapshot) string {
	var b strings.Builder
	if s := snap.System; s != nil {
		for _, g := range []struct {
			label string
			value *float64
		}{{"CPU", s.CPUPercent}, {"Memory", s.MemPercent}} {
			if g.value == nil {
				continue
			}
			b.WriteString(LabelStyle.Width(12).Render(g.label) +
				ThinProgressBar(gaugeWidth, *g.value) + fmt.Sprintf(" %.0f%%", *g.value) + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(ui.RenderSystem(snap.System))

	agentsSnap, ok := m.snapshots[fleet.ViewAgents]
	if ok && agentsSnap.Summary != nil {
		b.WriteString("\n")
		b.WriteString(ui.RenderSummary(agentsSnap.Summary))
	}
	if ok && agentsSnap.Pipeline != nil {
		b.WriteString("\n")
		b.WriteString(ui.RenderPipeline(agentsSnap.Pipeline))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderTable renders rows with the selected row highlighted, scrolled so
// the selection stays visible.
func (m Model) renderTable(cols []ui.TableColumn, rows []table.Row) string {
	t := ui.NewTable(cols, rows)
	t.SetHeight(m.tableHeight(len(rows)))
	t.SetCursor(m.selectedIndex())
	return t.View()
}

// tableHeight is the number of table lines that fit between the header,
// the log pane, and the footer.
func (m Model) tableHeight(rows int) int {
	want := rows + 1
	if m.height == 0 {
		return want
	}
	avail := m.height - 6
	if m.logPane {
		avail -= m.logPaneHeight() + 2
	}
	if avail < 3 {
		avail = 3
	}
	if want < avail {
		return want
	}
	return avail
}

// renderLogPane renders the followed agent's log lines in a bordered section.
func (m Model) renderLogPane() string {
	width := m.sectionWidth()
	state := "idle"
	agentID := ""
	if m.relay != nil {
		s, _ := m.relay.State()
		state = s.String()
		agentID = m.relay.AgentID()
	}

	lines := []string{SectionHeader("logs "+agentID, state, width)}
	for _, l := range strings.Split(m.logViewport.View(), "\n") {
		lines = append(lines, SectionContentLine(l, width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

// renderFooter renders the key hints, the sort order, and the last status message.
func (m Model) renderFooter() string {
	hints := []string{
		"q quit",
		"tab view",
		"r refresh",
		"s sort: " + m.sortOrder[m.CurrentView()].String(),
		"? help",
	}
	if m.CurrentView() == fleet.ViewAgents && m.relay != nil {
		hints = append(hints, "enter logs")
	}
	footer := FooterStyle.Render(strings.Join(hints, " | "))
	if m.status != "" {
		footer += " " + StatusStyle.Render(m.status)
	}
	return footer
}
