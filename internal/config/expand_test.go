package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/tokens/prom", filepath.Join(home, "tokens/prom")},
		{"/etc/prom/token", "/etc/prom/token"},
		{"~other/token", "~other/token"},
		{"relative/~/path", "relative/~/path"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandTilde(tt.in), tt.in)
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("FLEETDASH_TEST_PASS", "s3cret")
	os.Unsetenv("FLEETDASH_TEST_UNSET")

	assert.Equal(t, "postgres://dash:s3cret@db/fleet", Expand("postgres://dash:${FLEETDASH_TEST_PASS}@db/fleet"))
	assert.Equal(t, "s3cret-", Expand("$FLEETDASH_TEST_PASS-${FLEETDASH_TEST_UNSET}"))
	assert.Equal(t, "no vars", Expand("no vars"))
}

func TestExpand_HomeFallback(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, home+"/t", Expand("${HOME}/t"))
}

func TestLoad_ExpandsPaths(t *testing.T) {
	t.Setenv("FLEETDASH_TEST_PASS", "pw")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
metrics:
  bearer_token_file: ~/prom.token
agents:
  source: postgres
  dsn: postgres://dash:${FLEETDASH_TEST_PASS}@db/fleet
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "prom.token"), cfg.Metrics.BearerTokenFile)
	assert.Equal(t, "postgres://dash:pw@db/fleet", cfg.Agents.DSN)
}
