// Package config handles configuration loading and validation for docshell.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every error Validate returns.
var ErrInvalidConfig = errors.New("invalid config")

// BundleConfig controls CSS bundling.
type BundleConfig struct {
	Enabled bool     `yaml:"enabled"`
	Entries []string `yaml:"entries"` // Stylesheets, relative to the asset root, bundled into one file
	Minify  bool     `yaml:"minify"`
}

// LiveReloadConfig controls the development live reload channel.
type LiveReloadConfig struct {
	Path         string `yaml:"path"`          // Websocket endpoint (default: "/__livereload")
	PollInterval string `yaml:"poll_interval"` // Duration string, e.g. "100ms"
}

// IFrameSyncConfig controls the iframe synchronization widget.
type IFrameSyncConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TargetOrigin string `yaml:"target_origin"` // postMessage target origin (default: "*")
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: "/metrics"
}

// Config holds the configuration of a docshell server.
type Config struct {
	Listen       string   `yaml:"listen"`
	Dev          bool     `yaml:"dev"`
	LogLevel     string   `yaml:"log_level"`
	AssetsDir    string   `yaml:"assets_dir"`    // Serve assets from disk instead of the embedded copy
	TemplatesDir string   `yaml:"templates_dir"` // Render the document from templates on disk
	Scripts      []string `yaml:"scripts"`       // Entry scripts placed at the script injection point

	Bundle     BundleConfig     `yaml:"bundle"`
	LiveReload LiveReloadConfig `yaml:"live_reload"`
	IFrameSync IFrameSyncConfig `yaml:"iframe_sync"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Bundle:     BundleConfig{Enabled: true, Minify: true},
		IFrameSync: IFrameSyncConfig{Enabled: true},
		Metrics:    MetricsConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML config file at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config data and applies defaults. Keys missing from data
// keep the values from Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":3000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Bundle.Entries) == 0 {
		c.Bundle.Entries = []string{"styles/global.css"}
	}
	if c.LiveReload.Path == "" {
		c.LiveReload.Path = "/__livereload"
	}
	if c.LiveReload.PollInterval == "" {
		c.LiveReload.PollInterval = "100ms"
	}
	if c.IFrameSync.TargetOrigin == "" {
		c.IFrameSync.TargetOrigin = "*"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	// Expand home directory in on-disk paths
	for _, dir := range []*string{&c.AssetsDir, &c.TemplatesDir} {
		if strings.HasPrefix(*dir, "~/") {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				*dir = homeDir + (*dir)[1:]
			}
		}
	}
}

// PollInterval returns the parsed live reload poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.LiveReload.PollInterval)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// Validate checks the configuration for values that can't be served.
func (c *Config) Validate() error {
	var errs []error
	if c.Bundle.Enabled {
		for _, entry := range c.Bundle.Entries {
			if !strings.HasSuffix(entry, ".css") {
				errs = append(errs, fmt.Errorf("bundle entry %q: not a stylesheet", entry))
			}
			if path.IsAbs(entry) || strings.HasPrefix(path.Clean(entry), "..") {
				errs = append(errs, fmt.Errorf("bundle entry %q: must be relative to the asset root", entry))
			}
		}
	}
	if d, err := time.ParseDuration(c.LiveReload.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("live_reload.poll_interval: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("live_reload.poll_interval: must be positive, got %s", d))
	}
	for name, p := range map[string]string{
		"live_reload.path": c.LiveReload.Path,
		"metrics.path":     c.Metrics.Path,
	} {
		if !strings.HasPrefix(p, "/") || p == "/" {
			errs = append(errs, fmt.Errorf("%s: must be an absolute path other than /, got %q", name, p))
		}
	}
	if c.Dev && c.Metrics.Enabled && c.LiveReload.Path == c.Metrics.Path {
		errs = append(errs, fmt.Errorf("live_reload.path and metrics.path both use %q", c.Metrics.Path))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
