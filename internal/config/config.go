// Package config provides configuration management for cmdbsync.
//
// The config file describes the monitored sources, where their tables are
// read from, where batches are pushed and how aggressively to poll. The
// built-in catalog is compiled in; catalog.path names an optional overlay.
//
// Config file locations (priority order):
//  1. $CMDBSYNC_CONFIG
//  2. ./cmdbsync.yaml
//  3. ~/.config/cmdbsync/config.yaml
//  4. /etc/cmdbsync/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path. Relative paths inside
// the file are resolved against the file's directory.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.resolvePaths(path)

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Posture:  PostureBalanced,
		Database: DatabaseConfig{Path: "./cmdbsync.db"},
		Push:     PushConfig{Kind: PushLog},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info"},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	} else {
		c.Posture = ParsePosture(string(c.Posture))
	}
	if c.Push.Kind == "" {
		c.Push.Kind = PushLog
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Sources {
		if c.Sources[i].Rows.Kind == "" {
			c.Sources[i].Rows.Kind = RowsFile
		}
		if c.Sources[i].ElementID == "" {
			c.Sources[i].ElementID = c.Sources[i].Name
		}
	}
}

func (c *Config) resolvePaths(configPath string) {
	c.Database.Path = ResolvePath(configPath, c.Database.Path)
	c.Catalog.Path = ResolvePath(configPath, c.Catalog.Path)
	c.Push.TokenFile = ResolvePath(configPath, c.Push.TokenFile)
	for i := range c.Sources {
		rows := &c.Sources[i].Rows
		rows.Dir = ResolvePath(configPath, rows.Dir)
		if rows.SSH != nil {
			rows.SSH.KeyPath = ResolvePath(configPath, rows.SSH.KeyPath)
			rows.SSH.PasswordFile = ResolvePath(configPath, rows.SSH.PasswordFile)
		}
	}
}

// Validate reports every problem found in the configuration
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		name := strings.TrimSpace(s.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, name))
		}
		seen[name] = true

		if s.Protocol == "" {
			errs = append(errs, fmt.Errorf("source %q: protocol is required", name))
		}
		switch s.Rows.Kind {
		case RowsFile:
			if s.Rows.Dir == "" {
				errs = append(errs, fmt.Errorf("source %q: rows.dir is required for file rows", name))
			}
		case RowsSSH:
			if s.Host == "" {
				errs = append(errs, fmt.Errorf("source %q: host is required for ssh rows", name))
			}
			if s.Rows.SSH == nil || s.Rows.SSH.User == "" {
				errs = append(errs, fmt.Errorf("source %q: rows.ssh.user is required", name))
			}
		default:
			errs = append(errs, fmt.Errorf("source %q: unknown rows kind %q", name, s.Rows.Kind))
		}
	}

	switch c.Push.Kind {
	case PushLog:
	case PushHTTP:
		if c.Push.URL == "" {
			errs = append(errs, errors.New("push.url is required for http push"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown push kind %q", c.Push.Kind))
	}

	return errors.Join(errs...)
}

// EffectiveBehavior returns the posture profile with overrides applied
func (c *Config) EffectiveBehavior() BehaviorProfile {
	base := c.Posture.GetProfile()

	if c.Behavior == nil {
		return base
	}

	if c.Behavior.PollInterval != nil {
		base.PollInterval = c.Behavior.PollInterval.Duration()
	}
	if c.Behavior.ProbeTimeout != nil {
		base.ProbeTimeout = c.Behavior.ProbeTimeout.Duration()
	}
	if c.Behavior.PushTimeout != nil {
		base.PushTimeout = c.Behavior.PushTimeout.Duration()
	}
	if c.Behavior.MaxConcurrentSources != nil {
		base.MaxConcurrentSources = *c.Behavior.MaxConcurrentSources
	}
	if c.Behavior.PushRatePerSecond != nil {
		base.PushRatePerSecond = *c.Behavior.PushRatePerSecond
	}
	if c.Behavior.PushMaxRetries != nil {
		base.PushMaxRetries = *c.Behavior.PushMaxRetries
	}

	return base
}

// SourcePollInterval returns a source's own interval or the posture's
func (c *Config) SourcePollInterval(s SourceConfig) time.Duration {
	if s.PollInterval != nil && *s.PollInterval > 0 {
		return s.PollInterval.Duration()
	}
	return c.EffectiveBehavior().PollInterval
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	behavior := c.EffectiveBehavior()
	enabled := 0
	for _, s := range c.Sources {
		if s.IsEnabled() {
			enabled++
		}
	}

	summary := fmt.Sprintf("Posture: %s, Push: %s\n", c.Posture, c.Push.Kind)
	summary += fmt.Sprintf("Poll: %s, Concurrency: %d, Probe: %v\n",
		behavior.PollInterval, behavior.MaxConcurrentSources, c.Probe.Enabled)
	summary += fmt.Sprintf("Sources: %d enabled of %d", enabled, len(c.Sources))
	return summary
}
