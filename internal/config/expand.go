package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax - just ~ for the current user.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return unchanged if we can't get home
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// Expand replaces ${VAR} and $VAR with environment values. Unset
// variables expand to the empty string, except ${HOME}, which falls back
// to the user's home directory.
func Expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if name == "HOME" {
			if home, err := os.UserHomeDir(); err == nil {
				return home
			}
		}
		return ""
	})
}

// expandPaths resolves the config fields that may reference the
// environment or the home directory.
func expandPaths(cfg *Config) {
	cfg.Metrics.BearerTokenFile = ExpandTilde(Expand(cfg.Metrics.BearerTokenFile))
	cfg.Agents.DSN = Expand(cfg.Agents.DSN)
}
