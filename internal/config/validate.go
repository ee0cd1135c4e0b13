package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
)

// Minimum refresh interval for any view.
const minViewInterval = 500 * time.Millisecond

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but fleetdash only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade fleetdash or lower the version field.")
	}

	if err := validateMetrics(cfg.Metrics); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'metrics' section in your "+ConfigFileName+".")
	}

	for _, set := range []struct {
		section string
		queries map[string]QueryConfig
	}{
		{"queries", cfg.Queries},
		{"agent_queries", cfg.AgentQueries},
	} {
		if err := validateQueries(set.queries); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
				fmt.Sprintf("Check the '%s' section in your %s.", set.section, ConfigFileName))
		}
	}

	if err := validateAgents(cfg.Agents); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'agents' section in your "+ConfigFileName+".")
	}

	if err := validateViews(cfg.Views); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'views' section in your "+ConfigFileName+".")
	}

	if err := validateLiveness(cfg.Liveness); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'liveness' section in your "+ConfigFileName+".")
	}

	if cfg.History.GPUSize <= 0 || cfg.History.AgentSize <= 0 {
		return errors.New(errors.ErrConfig,
			"history sizes must be positive",
			"Set history.gpu_size and history.agent_size to values like 18 and 10.")
	}
	if cfg.History.PruneAfter < 1 {
		return errors.New(errors.ErrConfig,
			"history.prune_after must be at least 1",
			"Use 3 to tolerate two flaky cycles before dropping a device's sparklines.")
	}

	if err := validateLogs(cfg.Logs); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'logs' section in your "+ConfigFileName+".")
	}

	return nil
}

func validateMetrics(m MetricsConfig) error {
	if m.Address == "" {
		return fmt.Errorf("metrics.address is required")
	}
	if err := validateURL(m.Address, "http", "https"); err != nil {
		return fmt.Errorf("metrics.address: %w", err)
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("metrics.timeout must be positive, got %s", m.Timeout)
	}
	return nil
}

func validateQueries(queries map[string]QueryConfig) error {
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)

	presence := 0
	signals := make(map[string]string)
	for _, name := range names {
		q := queries[name]
		if strings.TrimSpace(q.Expr) == "" {
			return fmt.Errorf("query %q has no expr", name)
		}
		switch q.Scale {
		case ScalePercent, ScaleRaw:
		default:
			return fmt.Errorf("query %q has unknown scale %q (want %q or %q)", name, q.Scale, ScalePercent, ScaleRaw)
		}
		if q.Timeout < 0 {
			return fmt.Errorf("query %q has negative timeout", name)
		}
		if other, ok := signals[q.Signal]; ok {
			return fmt.Errorf("queries %q and %q both feed signal %q", other, name, q.Signal)
		}
		signals[q.Signal] = name
		if q.Presence {
			presence++
		}
	}
	if presence > 1 {
		return fmt.Errorf("only one query may be marked presence, found %d", presence)
	}
	return nil
}

func validateAgents(a AgentsConfig) error {
	switch a.Source {
	case SourceHTTP:
	case SourcePostgres:
		if a.DSN == "" {
			return fmt.Errorf("agents.dsn is required when agents.source is %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("agents.source must be %q or %q, got %q", SourceHTTP, SourcePostgres, a.Source)
	}
	if a.URL == "" {
		return fmt.Errorf("agents.url is required for bottleneck snapshots")
	}
	if err := validateURL(a.URL, "http", "https"); err != nil {
		return fmt.Errorf("agents.url: %w", err)
	}
	if a.Node != "" && a.Site == "" {
		return fmt.Errorf("agents.node requires agents.site")
	}
	return nil
}

func validateViews(v ViewsConfig) error {
	for name, d := range map[string]time.Duration{
		"agents_interval":    v.AgentsInterval,
		"gpu_interval":       v.GPUInterval,
		"aggregate_interval": v.AggregateInterval,
	} {
		if d < minViewInterval {
			return fmt.Errorf("views.%s must be at least %s, got %s", name, minViewInterval, d)
		}
	}
	if v.LeaderboardSize < 0 {
		return fmt.Errorf("views.leaderboard_size must not be negative, got %d", v.LeaderboardSize)
	}
	return nil
}

func validateLiveness(l LivenessConfig) error {
	if l.Window <= 0 || l.Starvation <= 0 {
		return fmt.Errorf("liveness.window and liveness.starvation must be positive")
	}
	if l.Starvation < l.Window {
		return fmt.Errorf("liveness.starvation (%s) must not be shorter than liveness.window (%s)", l.Starvation, l.Window)
	}
	if !(l.Idle < l.Warning && l.Warning < l.Critical) {
		return fmt.Errorf("liveness thresholds must satisfy idle < warning < critical, got %s/%s/%s", l.Idle, l.Warning, l.Critical)
	}
	return nil
}

func validateLogs(l LogsConfig) error {
	switch l.Transport {
	case TransportWebSocket:
		if err := validateURL(l.URL, "ws", "wss", "http", "https"); err != nil {
			return fmt.Errorf("logs.url: %w", err)
		}
	case TransportNATS:
		if err := validateURL(l.URL, "nats", "tls"); err != nil {
			return fmt.Errorf("logs.url: %w", err)
		}
		if l.Subject == "" {
			return fmt.Errorf("logs.subject is required for the nats transport")
		}
	default:
		return fmt.Errorf("logs.transport must be %q or %q, got %q", TransportWebSocket, TransportNATS, l.Transport)
	}
	if l.Buffer <= 0 {
		return fmt.Errorf("logs.buffer must be positive, got %d", l.Buffer)
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%q has no host", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%q must use one of: %s", raw, strings.Join(schemes, ", "))
}
