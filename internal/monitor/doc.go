// Package monitor implements the terminal dashboard over published view
// snapshots.
//
// The model subscribes to a fleet.Hub and re-renders whenever any view
// publishes. It never fetches on its own: the engine's schedulers own the
// refresh cadence, and the r key only asks the engine for an early cycle.
//
// # Tabs
//
//	gpus    - device table with utilization trend
//	agents  - agent table with liveness, activity, and bucks trend
//	system  - host gauges, agent counts, and the pipeline verdict
//
// Selection is remembered per tab by entity id, so it survives re-sorting
// and refreshes. Selecting an agent and pressing Enter follows its log
// stream in a pane below the table; Esc releases the subscription.
//
// # Keyboard Shortcuts
//
//	q, Ctrl+C   - Quit
//	Tab, 1-3    - Switch view
//	r           - Refresh current view
//	s           - Cycle sort order (default/name/load)
//	j/k, ↑/↓    - Move selection
//	Enter, l    - Follow logs of the selected agent
//	Esc         - Close logs or help
//	?           - Toggle help overlay
package monitor
