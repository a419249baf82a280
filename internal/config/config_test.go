package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":3000", cfg.Listen)
	assert.False(t, cfg.Dev)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Bundle.Enabled)
	assert.Equal(t, []string{"styles/global.css"}, cfg.Bundle.Entries)
	assert.Equal(t, "/__livereload", cfg.LiveReload.Path)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval())
	assert.True(t, cfg.IFrameSync.Enabled)
	assert.Equal(t, "*", cfg.IFrameSync.TargetOrigin)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docshell.yaml")
	content := `
listen: "127.0.0.1:8080"
dev: true
log_level: debug
templates_dir: ~/site/templates
scripts:
  - /build/entry.js
bundle:
  enabled: false
live_reload:
  poll_interval: 250ms
iframe_sync:
  target_origin: "http://localhost:5639"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.True(t, cfg.Dev)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"/build/entry.js"}, cfg.Scripts)
	if home, err := os.UserHomeDir(); err == nil {
		assert.Equal(t, filepath.Join(home, "site", "templates"), cfg.TemplatesDir)
	}
	assert.False(t, cfg.Bundle.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.True(t, cfg.IFrameSync.Enabled, "unset keys keep their defaults")
	assert.Equal(t, "http://localhost:5639", cfg.IFrameSync.TargetOrigin)
	assert.Equal(t, "/__livereload", cfg.LiveReload.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("listen: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"non css entry", func(c *Config) { c.Bundle.Entries = []string{"app.js"} }},
		{"absolute entry", func(c *Config) { c.Bundle.Entries = []string{"/styles/global.css"} }},
		{"escaping entry", func(c *Config) { c.Bundle.Entries = []string{"../global.css"} }},
		{"bad interval", func(c *Config) { c.LiveReload.PollInterval = "soon" }},
		{"negative interval", func(c *Config) { c.LiveReload.PollInterval = "-1s" }},
		{"relative live reload path", func(c *Config) { c.LiveReload.Path = "reload" }},
		{"root metrics path", func(c *Config) { c.Metrics.Path = "/" }},
		{"clashing paths", func(c *Config) {
			c.Dev = true
			c.LiveReload.Path = "/metrics"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidateIgnoresEntriesWhenBundlingDisabled(t *testing.T) {
	cfg := Default()
	cfg.Bundle.Enabled = false
	cfg.Bundle.Entries = []string{"app.js"}

	assert.NoError(t, cfg.Validate())
}
