package monitor

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/fleet"
)

// SortOrder defines how the rows of a tab are sorted.
type SortOrder int

const (
	// SortByDefault keeps the view's own order (group, index / node, label).
	SortByDefault SortOrder = iota
	SortByName
	// SortByLoad puts the busiest rows first: utilization for GPUs, bucks
	// for agents.
	SortByLoad
)

// String returns a human-readable label for the sort order.
func (s SortOrder) String() string {
	switch s {
	case SortByName:
		return "name"
	case SortByLoad:
		return "load"
	default:
		return "default"
	}
}

// Next cycles to the next sort order.
func (s SortOrder) Next() SortOrder {
	return SortOrder((int(s) + 1) % 3)
}

// KeyMap holds every binding of the dashboard.
type KeyMap struct {
	Quit    key.Binding
	NextTab key.Binding
	PrevTab key.Binding
	GPUs    key.Binding
	Agents  key.Binding
	System  key.Binding
	Refresh key.Binding
	Sort    key.Binding
	Up      key.Binding
	Down    key.Binding
	First   key.Binding
	Last    key.Binding
	Logs    key.Binding
	Close   key.Binding
	Help    key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q / Ctrl+C", "Quit")),
		NextTab: key.NewBinding(key.WithKeys("tab"), key.WithHelp("Tab", "Next view")),
		PrevTab: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("Shift+Tab", "Previous view")),
		GPUs:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "GPUs")),
		Agents:  key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "Agents")),
		System:  key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "System")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "Refresh current view")),
		Sort:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Cycle sort order")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up / k", "Select previous row")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down / j", "Select next row")),
		First:   key.NewBinding(key.WithKeys("home"), key.WithHelp("Home", "Select first row")),
		Last:    key.NewBinding(key.WithKeys("end"), key.WithHelp("End", "Select last row")),
		Logs:    key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("Enter / l", "Follow logs of selected agent")),
		Close:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("Esc", "Close logs / help")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "Toggle this help")),
	}
}

// Bindings lists the bindings in help order.
func (k KeyMap) Bindings() []key.Binding {
	return []key.Binding{
		k.Quit, k.NextTab, k.PrevTab, k.GPUs, k.Agents, k.System,
		k.Refresh, k.Sort, k.Up, k.Down, k.First, k.Last,
		k.Logs, k.Close, k.Help,
	}
}

// HandleKeyMsg processes keyboard input. It returns false for keys the
// dashboard does not bind.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	keys := m.keys

	// Help toggle takes priority
	if key.Matches(msg, keys.Help) {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key.Matches(msg, keys.Close) {
		m.showHelp = false
		return true, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quit()
		return true, tea.Quit

	case key.Matches(msg, keys.Close):
		m.closeLogs()
		return true, nil

	case key.Matches(msg, keys.NextTab):
		m.tab = (m.tab + 1) % len(fleet.ViewNames)
		return true, m.followSelection()

	case key.Matches(msg, keys.PrevTab):
		m.tab = (m.tab + len(fleet.ViewNames) - 1) % len(fleet.ViewNames)
		return true, m.followSelection()

	case key.Matches(msg, keys.GPUs):
		m.tab = 0
		return true, nil

	case key.Matches(msg, keys.Agents):
		m.tab = 1
		return true, m.followSelection()

	case key.Matches(msg, keys.System):
		m.tab = 2
		return true, nil

	case key.Matches(msg, keys.Refresh):
		m.refresh()
		return true, nil

	case key.Matches(msg, keys.Sort):
		view := m.CurrentView()
		m.sortOrder[view] = m.sortOrder[view].Next()
		return true, nil

	case key.Matches(msg, keys.Up):
		m.moveSelection(-1)
		return true, m.followSelection()

	case key.Matches(msg, keys.Down):
		m.moveSelection(1)
		return true, m.followSelection()

	case key.Matches(msg, keys.First):
		m.selectIndex(0)
		return true, m.followSelection()

	case key.Matches(msg, keys.Last):
		m.selectIndex(len(m.rowIDs()) - 1)
		return true, m.followSelection()

	case key.Matches(msg, keys.Logs):
		return true, m.openLogs()
	}

	return false, nil
}

// openLogs follows the selected agent's logs.
func (m *Model) openLogs() tea.Cmd {
	if m.relay == nil || m.CurrentView() != fleet.ViewAgents {
		return nil
	}
	id := m.SelectedID()
	if id == "" {
		return nil
	}
	if m.logPane && m.relay.AgentID() == id {
		return nil
	}
	m.relay.Select(m.ctx, id)
	m.logPane = true
	m.refreshLogViewport()
	return m.listenLogs()
}

// followSelection points an open log pane at the agent now selected. It
// runs after every selection change and every agents snapshot, so a
// selection that fell back to another row is followed too.
func (m *Model) followSelection() tea.Cmd {
	if !m.logPane || m.relay == nil || m.CurrentView() != fleet.ViewAgents {
		return nil
	}
	id := m.SelectedID()
	if m.relay.AgentID() == id {
		return nil
	}
	m.relay.Select(m.ctx, id)
	m.refreshLogViewport()
	return m.listenLogs()
}

func (m *Model) listenLogs() tea.Cmd {
	if m.waitingLogs {
		return nil
	}
	m.waitingLogs = true
	return m.waitLogsCmd()
}

func (m *Model) closeLogs() {
	if !m.logPane {
		return
	}
	m.logPane = false
	if m.relay != nil {
		m.relay.Select(m.ctx, "")
	}
}

func (m *Model) refresh() {
	if m.refresher == nil {
		return
	}
	view := m.CurrentView()
	accepted, err := m.refresher.Trigger(view)
	switch {
	case err != nil:
		m.status = errors.NewFailure("refresh", err).String()
	case accepted:
		m.status = "refreshing " + view
	default:
		m.status = view + " is already refreshing"
	}
}
