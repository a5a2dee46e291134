package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Server.HeartbeatSecs)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentLeads)
	assert.Equal(t, 200, cfg.Batch.MaxLeads)
	assert.InDelta(t, 0, cfg.Batch.RatePerSec, 0.001)
	assert.Equal(t, 3, cfg.Batch.HarvestRetries)
	assert.Equal(t, "", cfg.Badge.RulesPath)
	assert.Equal(t, "out", cfg.Report.OutputDir)
	assert.Equal(t, "Leads", cfg.Report.TitlePrefix)
	assert.Equal(t, 2500, cfg.Policy.MaxBlockChars)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent_leads: 8
  rate_per_sec: 2.5
badge:
  rules_path: badges.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrentLeads)
	assert.InDelta(t, 2.5, cfg.Batch.RatePerSec, 0.001)
	assert.Equal(t, "badges.yaml", cfg.Badge.RulesPath)
	// Defaults still apply for unset values
	assert.Equal(t, 200, cfg.Batch.MaxLeads)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
batch:
  max_leads: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INTAKE_LOG_LEVEL", "warn")
	t.Setenv("INTAKE_BATCH_MAX_LEADS", "75")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 75, cfg.Batch.MaxLeads)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INTAKE_SERVER_PORT=3000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("INTAKE_SERVER_PORT") })

	require.NoError(t, LoadEnv(""))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadEnv_Missing(t *testing.T) {
	dir := chdirTemp(t)
	assert.NoError(t, LoadEnv(DefaultEnvFile))
	assert.Error(t, LoadEnv(filepath.Join(dir, "prod.env")))
}

func TestLoad_IgnoresDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INTAKE_SERVER_PORT=3001\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestResolveMaxLeads(t *testing.T) {
	b := BatchConfig{MaxLeads: 200}
	assert.Equal(t, 25, b.ResolveMaxLeads(25))
	assert.Equal(t, 200, b.ResolveMaxLeads(0))
	assert.Equal(t, -1, b.ResolveMaxLeads(-1))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func TestInitLoggerUnknownFormat(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "logfmt"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.HeartbeatSecs = 15
	cfg.Batch.MaxConcurrentLeads = 4
	cfg.Batch.MaxLeads = 200
	cfg.Batch.HarvestRetries = 3
	cfg.Policy.MaxBlockChars = 2500
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		mutate func(*Config)
		err    string
	}{
		{"run ok", "run", func(*Config) {}, ""},
		{"serve ok", "serve", func(*Config) {}, ""},
		{"run ignores port", "run", func(c *Config) { c.Server.Port = 0 }, ""},
		{"serve bad port", "serve", func(c *Config) { c.Server.Port = 0 }, "server.port must be > 0"},
		{"serve heartbeat", "serve", func(c *Config) { c.Server.HeartbeatSecs = 0 }, "heartbeat_secs"},
		{"concurrency low", "run", func(c *Config) { c.Batch.MaxConcurrentLeads = 0 }, "max_concurrent_leads must be between 1 and 50"},
		{"concurrency high", "run", func(c *Config) { c.Batch.MaxConcurrentLeads = 51 }, "max_concurrent_leads must be between 1 and 50"},
		{"max leads", "run", func(c *Config) { c.Batch.MaxLeads = 0 }, "batch.max_leads"},
		{"negative rate", "run", func(c *Config) { c.Batch.RatePerSec = -1 }, "rate_per_sec"},
		{"block chars", "run", func(c *Config) { c.Policy.MaxBlockChars = 0 }, "max_block_chars"},
		{"unknown mode", "enrich", func(*Config) {}, "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}
