package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yamlv3 "gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 100000, cfg.Run.PacketBudget)
	assert.Equal(t, 20000, cfg.Run.ProgressInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	require.Len(t, cfg.Writers, 1)
	assert.Equal(t, "csv", cfg.Writers[0].Type)
	assert.True(t, cfg.Writers[0].Enabled)
	assert.Equal(t, "features.csv", cfg.Writers[0].Path)

	timeout, err := cfg.Run.FlowTimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, timeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  path: capture.pcap
run:
  packet_budget: 500
  flow_timeout: 2m
writers:
  - type: csv
    enabled: true
    path: out.csv
  - type: clickhouse
    enabled: false
    clickhouse:
      host: localhost
      port: 9000
      database: nids
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "capture.pcap", cfg.Source.Path)
	assert.Equal(t, 500, cfg.Run.PacketBudget)
	assert.Equal(t, 20000, cfg.Run.ProgressInterval, "untouched keys keep defaults")
	timeout, err := cfg.Run.FlowTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, timeout)

	require.Len(t, cfg.Writers, 2)
	assert.Equal(t, "out.csv", cfg.Writers[0].Path)
	assert.Equal(t, "localhost", cfg.Writers[1].ClickHouse.Host)
	assert.Equal(t, 9000, cfg.Writers[1].ClickHouse.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvAndFlagPrecedence(t *testing.T) {
	path := writeConfig(t, "run:\n  packet_budget: 10\n  progress_interval: 5\n")
	t.Setenv("FLOWFEAT_RUN__PACKET_BUDGET", "20")
	t.Setenv("FLOWFEAT_LOG__LEVEL", "debug")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("run.progress_interval", 0, "")
	require.NoError(t, flags.Parse([]string{"--run.progress_interval=7"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Run.PacketBudget)
	assert.Equal(t, 7, cfg.Run.ProgressInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Run: RunConfig{PacketBudget: -1, FlowTimeout: "soon"}, Writers: []WriterConfig{{}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "packet_budget")
	assert.ErrorContains(t, err, "flow_timeout")
	assert.ErrorContains(t, err, "missing type")
}

func TestDump(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	out, err := Dump(cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, yamlv3.Unmarshal(out, &back))
	assert.Equal(t, cfg.Run, back.Run)
	assert.Equal(t, cfg.Writers[0].Path, back.Writers[0].Path)
}
