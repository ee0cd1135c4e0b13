package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".fleetdash.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/fleetdash"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. FLEETDASH_METRICS_ADDRESS.
	EnvPrefix = "FLEETDASH"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Create "+ConfigFileName+" or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .fleetdash.yaml in current directory
// 3. ~/.config/fleetdash/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, _ := os.UserHomeDir(); home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault loads config from the found path, or returns defaults
// (with environment overrides applied) if no file exists.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return parseConfig(newViper(), "")
	}

	return Load(path)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Failed to render config", "")
	}
	return out, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	// Configured query sets replace the defaults rather than merging into them.
	if v.IsSet("queries") {
		cfg.Queries = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		where := "your config"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	if cfg.Queries == nil {
		cfg.Queries = make(map[string]QueryConfig)
	}
	if cfg.AgentQueries == nil {
		cfg.AgentQueries = make(map[string]QueryConfig)
	}
	normalizeQueries(cfg.Queries)
	normalizeQueries(cfg.AgentQueries)
	expandPaths(cfg)

	return cfg, nil
}

// normalizeQueries fills per-query defaults that depend on the query name.
func normalizeQueries(queries map[string]QueryConfig) {
	for name, q := range queries {
		if q.Signal == "" {
			q.Signal = name
		}
		if q.Scale == "" {
			q.Scale = ScaleRaw
		}
		queries[name] = q
	}
}

// setDefaults registers scalar keys so environment overrides are picked up
// by Unmarshal even when the file omits them.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.bearer_token_file", d.Metrics.BearerTokenFile)
	v.SetDefault("metrics.timeout", d.Metrics.Timeout.String())
	v.SetDefault("agents.source", d.Agents.Source)
	v.SetDefault("agents.url", d.Agents.URL)
	v.SetDefault("agents.dsn", d.Agents.DSN)
	v.SetDefault("agents.site", d.Agents.Site)
	v.SetDefault("agents.node", d.Agents.Node)
	v.SetDefault("agents.timeout", d.Agents.Timeout.String())
	v.SetDefault("views.agents_interval", d.Views.AgentsInterval.String())
	v.SetDefault("views.gpu_interval", d.Views.GPUInterval.String())
	v.SetDefault("views.aggregate_interval", d.Views.AggregateInterval.String())
	v.SetDefault("views.leaderboard_size", d.Views.LeaderboardSize)
	v.SetDefault("liveness.window", d.Liveness.Window.String())
	v.SetDefault("liveness.starvation", d.Liveness.Starvation.String())
	v.SetDefault("liveness.idle", d.Liveness.Idle.String())
	v.SetDefault("liveness.warning", d.Liveness.Warning.String())
	v.SetDefault("liveness.critical", d.Liveness.Critical.String())
	v.SetDefault("liveness.min_growth", d.Liveness.MinGrowth)
	v.SetDefault("history.gpu_size", d.History.GPUSize)
	v.SetDefault("history.agent_size", d.History.AgentSize)
	v.SetDefault("history.prune_after", d.History.PruneAfter)
	v.SetDefault("logs.transport", d.Logs.Transport)
	v.SetDefault("logs.url", d.Logs.URL)
	v.SetDefault("logs.subject", d.Logs.Subject)
	v.SetDefault("logs.buffer", d.Logs.Buffer)
	v.SetDefault("local.enabled", d.Local.Enabled)
	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
}
