package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int               `yaml:"version"`
	Posture  Posture           `yaml:"posture"`
	Behavior *BehaviorOverride `yaml:"behavior,omitempty"`
	Database DatabaseConfig    `yaml:"database"`
	Catalog  CatalogConfig     `yaml:"catalog"`
	Sources  []SourceConfig    `yaml:"sources"`
	Probe    ProbeConfig       `yaml:"probe"`
	Push     PushConfig        `yaml:"push"`
	HTTP     HTTPConfig        `yaml:"http"`
	Log      LogConfig         `yaml:"log"`
}

// BehaviorOverride allows overriding posture defaults
type BehaviorOverride struct {
	PollInterval         *Duration `yaml:"poll_interval,omitempty"`
	ProbeTimeout         *Duration `yaml:"probe_timeout,omitempty"`
	PushTimeout          *Duration `yaml:"push_timeout,omitempty"`
	MaxConcurrentSources *int      `yaml:"max_concurrent_sources,omitempty"`
	PushRatePerSecond    *float64  `yaml:"push_rate_per_second,omitempty"`
	PushMaxRetries       *int      `yaml:"push_max_retries,omitempty"`
}

// DatabaseConfig holds state store settings. An empty path disables persistence.
type DatabaseConfig struct {
	Path             string    `yaml:"path"`
	JournalRetention *Duration `yaml:"journal_retention,omitempty"`
}

// CatalogConfig points at an optional YAML overlay merged over the built-in catalog
type CatalogConfig struct {
	Path  string `yaml:"path,omitempty"`
	Watch bool   `yaml:"watch,omitempty"`
}

// Row source kinds
const (
	RowsFile = "file"
	RowsSSH  = "ssh"
)

// SourceConfig describes one monitored element
type SourceConfig struct {
	Name      string `yaml:"name"`
	ElementID string `yaml:"element_id"`
	// Protocol names the connector in the catalog
	Protocol     string     `yaml:"protocol"`
	Host         string     `yaml:"host,omitempty"`
	Enabled      *bool      `yaml:"enabled,omitempty"` // nil = enabled
	PollInterval *Duration  `yaml:"poll_interval,omitempty"`
	Rows         RowsConfig `yaml:"rows"`
}

// IsEnabled reports whether the source should be polled
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RowsConfig selects where a source's tables are read from
type RowsConfig struct {
	Kind string     `yaml:"kind"`
	Dir  string     `yaml:"dir,omitempty"`
	SSH  *SSHConfig `yaml:"ssh,omitempty"`
}

// SSHConfig holds export command access. Secrets are referenced by path.
type SSHConfig struct {
	User         string `yaml:"user"`
	Port         int    `yaml:"port,omitempty"`
	KeyPath      string `yaml:"key_path,omitempty"`
	Passphrase   string `yaml:"passphrase,omitempty"`
	PasswordFile string `yaml:"password_file,omitempty"`
	Command      string `yaml:"command,omitempty"`
}

// ProbeConfig enables the nmap reachability check
type ProbeConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Ports             string `yaml:"ports,omitempty"`
	SkipHostDiscovery bool   `yaml:"skip_host_discovery,omitempty"`
	NmapPath          string `yaml:"nmap_path,omitempty"`
}

// Push sink kinds
const (
	PushLog  = "log"
	PushHTTP = "http"
)

// PushConfig selects the push sink
type PushConfig struct {
	Kind      string `yaml:"kind"`
	URL       string `yaml:"url,omitempty"`
	TokenFile string `yaml:"token_file,omitempty"`
}

// HTTPConfig holds the status server settings
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
