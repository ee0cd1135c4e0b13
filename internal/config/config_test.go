package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, 8*time.Second, cfg.Metrics.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Views.AgentsInterval)
	assert.Equal(t, 10*time.Second, cfg.Views.GPUInterval)
	assert.Equal(t, 30*time.Second, cfg.Views.AggregateInterval)
	assert.Equal(t, 20, cfg.Views.LeaderboardSize)
	assert.Equal(t, 5*time.Minute, cfg.Liveness.Window)
	assert.Equal(t, 60*time.Minute, cfg.Liveness.Starvation)
	assert.Equal(t, 500, cfg.Logs.Buffer)
	assert.Equal(t, 18, cfg.History.GPUSize)
	assert.True(t, cfg.Queries["gpu_util"].Presence)

	assert.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version: 1
metrics:
  address: http://prom.internal:9090
  timeout: 3s
queries:
  util:
    expr: DCGM_FI_DEV_GPU_UTIL
    scale: percent
    presence: true
  temp:
    expr: DCGM_FI_DEV_GPU_TEMP
    signal: temperature
    timeout: 1s
agents:
  url: http://agents.internal:8000
  site: lab
views:
  gpu_interval: 15s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://prom.internal:9090", cfg.Metrics.Address)
	assert.Equal(t, 3*time.Second, cfg.Metrics.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Views.GPUInterval)
	assert.Equal(t, 5*time.Second, cfg.Views.AgentsInterval, "unset keys keep defaults")
	assert.Equal(t, "lab", cfg.Agents.Site)

	require.Len(t, cfg.Queries, 2, "configured queries replace the defaults")
	assert.Equal(t, QueryConfig{Expr: "DCGM_FI_DEV_GPU_UTIL", Signal: "util", Scale: ScalePercent, Presence: true}, cfg.Queries["util"])
	assert.Equal(t, QueryConfig{Expr: "DCGM_FI_DEV_GPU_TEMP", Signal: "temperature", Scale: ScaleRaw, Timeout: time.Second}, cfg.Queries["temp"])

	assert.NoError(t, Validate(cfg))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FLEETDASH_METRICS_ADDRESS", "http://override:9090")
	t.Setenv("FLEETDASH_LOGS_BUFFER", "42")

	path := writeConfig(t, "version: 1\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:9090", cfg.Metrics.Address)
	assert.Equal(t, 42, cfg.Logs.Buffer)
	assert.Len(t, cfg.Queries, len(DefaultQueries()))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	path := writeConfig(t, "metrics: [unclosed")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFind(t *testing.T) {
	path := writeConfig(t, "version: 1\n")

	found, err := Find(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	_, err = Find(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFind_CurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: 1\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	found, err := Find("")
	require.NoError(t, err)
	assert.Equal(t, ConfigFileName, filepath.Base(found))
}

func TestLoadOrDefault_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Metrics, cfg.Metrics)
}

func TestMarshal(t *testing.T) {
	out, err := Marshal(DefaultConfig())
	require.NoError(t, err)

	var back map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &back))
	metrics, ok := back["metrics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "8s", metrics["timeout"])
}
