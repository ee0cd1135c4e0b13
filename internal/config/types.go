package config

import (
	"time"

	"github.com/loopfactory/fleetdash/internal/logger"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .fleetdash.yaml configuration file.
type Config struct {
	Version      int                    `yaml:"version" mapstructure:"version"`
	Metrics      MetricsConfig          `yaml:"metrics" mapstructure:"metrics"`
	Queries      map[string]QueryConfig `yaml:"queries" mapstructure:"queries"`
	AgentQueries map[string]QueryConfig `yaml:"agent_queries" mapstructure:"agent_queries"`
	Agents       AgentsConfig           `yaml:"agents" mapstructure:"agents"`
	Views        ViewsConfig            `yaml:"views" mapstructure:"views"`
	Liveness     LivenessConfig         `yaml:"liveness" mapstructure:"liveness"`
	History      HistoryConfig          `yaml:"history" mapstructure:"history"`
	Logs         LogsConfig             `yaml:"logs" mapstructure:"logs"`
	Local        LocalConfig            `yaml:"local" mapstructure:"local"`
	Serve        ServeConfig            `yaml:"serve" mapstructure:"serve"`
	Log          logger.Config          `yaml:"log" mapstructure:"log"`
}

// MetricsConfig points at the Prometheus-compatible metrics backend.
type MetricsConfig struct {
	// Address is the base URL of the Prometheus HTTP API.
	Address string `yaml:"address" mapstructure:"address"`

	// BearerTokenFile, if set, is read once and sent as an Authorization header.
	BearerTokenFile string `yaml:"bearer_token_file" mapstructure:"bearer_token_file"`

	// Timeout is the default per-query deadline.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// QueryConfig defines one named metric query and the signal it feeds.
type QueryConfig struct {
	// Expr is the PromQL expression (or a "local:" metric name).
	Expr string `yaml:"expr" mapstructure:"expr"`

	// Signal is the entity signal the samples are stored under.
	// Defaults to the query name.
	Signal string `yaml:"signal" mapstructure:"signal"`

	// Scale is "percent" for ratio-or-percent values or "raw" for passthrough.
	Scale string `yaml:"scale" mapstructure:"scale"`

	// Timeout overrides metrics.timeout for this query.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Presence marks the query as the authoritative list of live entities.
	Presence bool `yaml:"presence" mapstructure:"presence"`
}

// AgentsConfig controls where agent, topology, and bottleneck data comes from.
type AgentsConfig struct {
	// Source is "http" or "postgres".
	Source string `yaml:"source" mapstructure:"source"`

	// URL is the base URL of the agent API. Bottleneck snapshots always come from here.
	URL string `yaml:"url" mapstructure:"url"`

	// DSN is the Postgres connection string when Source is "postgres".
	DSN string `yaml:"dsn" mapstructure:"dsn"`

	// Site and Node scope the agent list and GPU entities.
	Site string `yaml:"site" mapstructure:"site"`
	Node string `yaml:"node" mapstructure:"node"`

	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ViewsConfig holds the refresh interval of each view.
type ViewsConfig struct {
	AgentsInterval    time.Duration `yaml:"agents_interval" mapstructure:"agents_interval"`
	GPUInterval       time.Duration `yaml:"gpu_interval" mapstructure:"gpu_interval"`
	AggregateInterval time.Duration `yaml:"aggregate_interval" mapstructure:"aggregate_interval"`

	// LeaderboardSize caps the bucks leaderboard of the agents view. 0 hides it.
	LeaderboardSize int `yaml:"leaderboard_size" mapstructure:"leaderboard_size"`
}

// LivenessConfig holds the windows used to derive agent state.
type LivenessConfig struct {
	Window     time.Duration `yaml:"window" mapstructure:"window"`
	Starvation time.Duration `yaml:"starvation" mapstructure:"starvation"`
	Idle       time.Duration `yaml:"idle" mapstructure:"idle"`
	Warning    time.Duration `yaml:"warning" mapstructure:"warning"`
	Critical   time.Duration `yaml:"critical" mapstructure:"critical"`
	MinGrowth  float64       `yaml:"min_growth" mapstructure:"min_growth"`
}

// HistoryConfig sizes the sparkline windows.
type HistoryConfig struct {
	GPUSize    int `yaml:"gpu_size" mapstructure:"gpu_size"`
	AgentSize  int `yaml:"agent_size" mapstructure:"agent_size"`
	PruneAfter int `yaml:"prune_after" mapstructure:"prune_after"`
}

// LogsConfig selects the live log transport.
type LogsConfig struct {
	// Transport is "websocket" or "nats".
	Transport string `yaml:"transport" mapstructure:"transport"`

	// URL is the WebSocket base URL or the NATS server URL.
	URL string `yaml:"url" mapstructure:"url"`

	// Subject is the NATS subject prefix; the agent id is appended.
	Subject string `yaml:"subject" mapstructure:"subject"`

	// Buffer is the number of lines retained per selection.
	Buffer int `yaml:"buffer" mapstructure:"buffer"`
}

// LocalConfig enables the in-process host sampler.
type LocalConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// ServeConfig controls the HTTP publish surface.
type ServeConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Scale values for QueryConfig.Scale.
const (
	ScalePercent = "percent"
	ScaleRaw     = "raw"
)

// Agent source values for AgentsConfig.Source.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// Log transport values for LogsConfig.Transport.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// DefaultQueries returns the DCGM exporter queries used when none are configured.
func DefaultQueries() map[string]QueryConfig {
	return map[string]QueryConfig{
		"gpu_util": {
			Expr:     "DCGM_FI_DEV_GPU_UTIL",
			Signal:   "utilization",
			Scale:    ScalePercent,
			Presence: true,
		},
		"gpu_temp": {
			Expr:   "DCGM_FI_DEV_GPU_TEMP",
			Signal: "temperature",
			Scale:  ScaleRaw,
		},
		"gpu_power": {
			Expr:   "DCGM_FI_DEV_POWER_USAGE",
			Signal: "power",
			Scale:  ScaleRaw,
		},
		"gpu_mem_used": {
			Expr:   "DCGM_FI_DEV_FB_USED",
			Signal: "memory_used",
			Scale:  ScaleRaw,
		},
		"gpu_mem_total": {
			Expr:   "DCGM_FI_DEV_FB_USED + DCGM_FI_DEV_FB_FREE",
			Signal: "memory_total",
			Scale:  ScaleRaw,
		},
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Metrics: MetricsConfig{
			Address: "http://localhost:9090",
			Timeout: 8 * time.Second,
		},
		Queries:      DefaultQueries(),
		AgentQueries: make(map[string]QueryConfig),
		Agents: AgentsConfig{
			Source:  SourceHTTP,
			URL:     "http://localhost:8000",
			Timeout: 8 * time.Second,
		},
		Views: ViewsConfig{
			AgentsInterval:    5 * time.Second,
			GPUInterval:       10 * time.Second,
			AggregateInterval: 30 * time.Second,
			LeaderboardSize:   20,
		},
		Liveness: LivenessConfig{
			Window:     5 * time.Minute,
			Starvation: 60 * time.Minute,
			Idle:       90 * time.Minute,
			Warning:    3 * time.Hour,
			Critical:   6 * time.Hour,
			MinGrowth:  10,
		},
		History: HistoryConfig{
			GPUSize:    18,
			AgentSize:  10,
			PruneAfter: 3,
		},
		Logs: LogsConfig{
			Transport: TransportWebSocket,
			URL:       "ws://localhost:8000",
			Subject:   "agents.logs",
			Buffer:    500,
		},
		Local: LocalConfig{Enabled: true},
		Serve: ServeConfig{Addr: ":8088"},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}
