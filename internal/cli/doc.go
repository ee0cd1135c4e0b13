// Package cli implements the fleetdash command-line interface.
//
// Each Cobra command is declared in commands.go and delegates to a
// *Command function in its own file. Those functions build their backends
// with fleet.BuildDeps and drive a fleet.Engine.
//
// # Command Structure
//
//	fleetdash watch          - Live terminal dashboard (plain output when not a TTY)
//	fleetdash serve          - JSON API, websocket stream, and /metrics
//	fleetdash snapshot       - One refresh of every view, printed as table, json, or yaml
//	fleetdash logs [agent]   - Follow one agent's log stream
//	fleetdash config show    - Print the effective configuration
//	fleetdash version        - Build information
//
// # Flag Handling
//
// Global flags (--config, --verbose, --no-color) are defined on the root
// command. --verbose forces the debug log level regardless of the log
// section of the config. Execute cancels the command context on SIGINT
// and SIGTERM, which stops the schedulers and shuts the server down.
//
// # Machine Output
//
// `snapshot -o json` wraps its report in a JSONEnvelope so scripts can
// tell a degraded refresh from a failed command.
package cli
