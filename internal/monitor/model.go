package monitor

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/logrelay"
	"github.com/loopfactory/fleetdash/internal/reconcile"
)

// Refresher triggers a manual refresh of a view. *fleet.Engine satisfies it.
type Refresher interface {
	Trigger(view string) (bool, error)
}

// LogRelay is the part of *logrelay.Relay the dashboard drives.
type LogRelay interface {
	Select(ctx context.Context, agentID string) *logrelay.Subscription
	AgentID() string
	State() (logrelay.State, error)
	Lines() []string
	Updates() <-chan struct{}
}

// Options configures a Model.
type Options struct {
	Hub       *fleet.Hub
	Refresher Refresher
	// Relay backs the log pane. Nil disables it.
	Relay   LogRelay
	Context context.Context
	Now     func() time.Time
}

// Model is the Bubble Tea model for the fleet dashboard.
type Model struct {
	ctx         context.Context
	snaps       <-chan fleet.Snapshot
	unsubscribe func()
	refresher   Refresher
	relay       LogRelay
	keys        KeyMap
	now         func() time.Time

	snapshots  map[string]fleet.Snapshot
	selected   map[string]string // view -> selected entity id
	sortOrder  map[string]SortOrder
	tab        int
	width      int
	height     int
	lastUpdate time.Time
	status     string
	showHelp   bool
	quitting   bool

	logPane     bool
	waitingLogs bool
	logViewport viewport.Model
}

// snapshotMsg carries a snapshot published by a view.
type snapshotMsg fleet.Snapshot

// hubClosedMsg reports that the subscription ended.
type hubClosedMsg struct{}

// logUpdateMsg signals new log lines or a relay state change.
type logUpdateMsg struct{}

// tickMsg keeps relative times current.
type tickMsg time.Time

const tickInterval = time.Second

// minLogPaneHeight is the smallest log viewport, in lines.
const minLogPaneHeight = 5

// NewModel subscribes to the hub and seeds the model with the latest
// snapshot of every view.
func NewModel(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	snaps, unsubscribe := opts.Hub.Subscribe(0)
	m := Model{
		ctx:         ctx,
		snaps:       snaps,
		unsubscribe: unsubscribe,
		refresher:   opts.Refresher,
		relay:       opts.Relay,
		keys:        DefaultKeyMap(),
		now:         now,
		snapshots:   make(map[string]fleet.Snapshot),
		selected:    make(map[string]string),
		sortOrder:   make(map[string]SortOrder),
		logViewport: viewport.New(80, minLogPaneHeight),
	}
	for _, view := range fleet.ViewNames {
		if s, ok := opts.Hub.Latest(view); ok {
			m.applySnapshot(s)
		}
	}
	return m
}

// Init starts listening for snapshots and the clock tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitSnapshotCmd(), m.tickCmd())
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		handled, cmd := m.HandleKeyMsg(msg)
		if handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logViewport.Width = m.sectionWidth() - 4
		m.logViewport.Height = m.logPaneHeight()
		if m.logPane {
			m.refreshLogViewport()
		}

	case snapshotMsg:
		m.applySnapshot(fleet.Snapshot(msg))
		return m, tea.Batch(m.waitSnapshotCmd(), m.followSelection())

	case hubClosedMsg:
		return m, nil

	case tickMsg:
		return m, m.tickCmd()

	case logUpdateMsg:
		m.waitingLogs = false
		if !m.logPane {
			return m, nil
		}
		m.refreshLogViewport()
		m.waitingLogs = true
		return m, m.waitLogsCmd()
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	content := m.renderDashboard()
	if m.showHelp {
		return m.renderHelpOverlay(content)
	}
	return content
}

func (m Model) waitSnapshotCmd() tea.Cmd {
	ch := m.snaps
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return hubClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

func (m Model) waitLogsCmd() tea.Cmd {
	updates := m.relay.Updates()
	return func() tea.Msg {
		<-updates
		return logUpdateMsg{}
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) applySnapshot(s fleet.Snapshot) {
	m.snapshots[s.View] = s
	if s.FinishedAt.After(m.lastUpdate) {
		m.lastUpdate = s.FinishedAt
	}
}

func (m *Model) quit() {
	m.quitting = true
	m.closeLogs()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// CurrentView returns the name of the visible tab.
func (m Model) CurrentView() string {
	return fleet.ViewNames[m.tab]
}

// Snapshot returns the latest snapshot of view.
func (m Model) Snapshot(view string) (fleet.Snapshot, bool) {
	s, ok := m.snapshots[view]
	return s, ok
}

// SecondsSinceUpdate returns how many seconds have passed since the newest snapshot.
func (m Model) SecondsSinceUpdate() int {
	if m.lastUpdate.IsZero() {
		return 0
	}
	d := m.now().Sub(m.lastUpdate)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}

// GPURows returns the device rows in the current sort order.
func (m Model) GPURows() []fleet.GPU {
	rows := append([]fleet.GPU(nil), m.snapshots[fleet.ViewGPUs].GPUs...)
	switch m.sortOrder[fleet.ViewGPUs] {
	case SortByName:
		sort.SliceStable(rows, func(i, j int) bool {
			return strings.ToLower(rows[i].DisplayName) < strings.ToLower(rows[j].DisplayName)
		})
	case SortByLoad:
		sort.SliceStable(rows, func(i, j int) bool {
			a, aok := rows[i].Value("utilization")
			b, bok := rows[j].Value("utilization")
			if aok != bok {
				return aok
			}
			if a != b {
				return a > b
			}
			return reconcile.Less(rows[i].Entity, rows[j].Entity)
		})
	}
	return rows
}

// AgentRows returns the agent rows in the current sort order.
func (m Model) AgentRows() []fleet.AgentRow {
	rows := append([]fleet.AgentRow(nil), m.snapshots[fleet.ViewAgents].Agents...)
	switch m.sortOrder[fleet.ViewAgents] {
	case SortByName:
		sort.SliceStable(rows, func(i, j int) bool {
			return strings.ToLower(rows[i].Agent.Label()) < strings.ToLower(rows[j].Agent.Label())
		})
	case SortByLoad:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Agent.Bucks > rows[j].Agent.Bucks
		})
	}
	return rows
}

// rowIDs returns the entity ids of the visible tab in display order.
func (m Model) rowIDs() []string {
	var ids []string
	switch m.CurrentView() {
	case fleet.ViewGPUs:
		for _, g := range m.GPURows() {
			ids = append(ids, g.ID)
		}
	case fleet.ViewAgents:
		for _, a := range m.AgentRows() {
			ids = append(ids, a.Agent.ID)
		}
	}
	return ids
}

// SelectedID returns the selected entity of the visible tab. A selection
// that disappeared falls back to the first row.
func (m Model) SelectedID() string {
	ids := m.rowIDs()
	if len(ids) == 0 {
		return ""
	}
	want := m.selected[m.CurrentView()]
	for _, id := range ids {
		if id == want {
			return id
		}
	}
	return ids[0]
}

func (m Model) selectedIndex() int {
	id := m.SelectedID()
	for i, v := range m.rowIDs() {
		if v == id {
			return i
		}
	}
	return 0
}

func (m *Model) moveSelection(delta int) {
	m.selectIndex(m.selectedIndex() + delta)
}

func (m *Model) selectIndex(i int) {
	ids := m.rowIDs()
	if len(ids) == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(ids) {
		i = len(ids) - 1
	}
	m.selected[m.CurrentView()] = ids[i]
}

func (m *Model) refreshLogViewport() {
	if m.relay == nil {
		return
	}
	lines := m.relay.Lines()
	if len(lines) == 0 {
		state, err := m.relay.State()
		placeholder := "waiting for log lines (" + state.String() + ")"
		if err != nil {
			placeholder = "log stream error: " + err.Error()
		}
		m.logViewport.SetContent(LabelStyle.Render(placeholder))
		return
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	m.logViewport.GotoBottom()
}

func (m Model) logPaneHeight() int {
	if m.height == 0 {
		return minLogPaneHeight * 2
	}
	h := m.height / 3
	if h < minLogPaneHeight {
		h = minLogPaneHeight
	}
	return h
}

func (m Model) sectionWidth() int {
	if m.width == 0 {
		return 100
	}
	return m.width
}
