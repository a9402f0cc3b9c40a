package config

import "time"

// Posture defines how hard the service leans on monitored elements and the catalog
type Posture string

const (
	PostureStealth    Posture = "stealth"    // Minimal load, long intervals
	PostureCautious   Posture = "cautious"   // Conservative, respect rate limits
	PostureBalanced   Posture = "balanced"   // Default behavior
	PostureAggressive Posture = "aggressive" // Fast, thorough, persistent
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "stealth":
		return PostureStealth
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// BehaviorProfile defines timing and concurrency settings
type BehaviorProfile struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	PushTimeout          time.Duration `yaml:"push_timeout"`
	MaxConcurrentSources int           `yaml:"max_concurrent_sources"`
	PushRatePerSecond    float64       `yaml:"push_rate_per_second"`
	PushMaxRetries       int           `yaml:"push_max_retries"`
}

// PostureProfiles maps postures to their default behavior profiles
var PostureProfiles = map[Posture]BehaviorProfile{
	PostureStealth: {
		PollInterval:         time.Hour,
		ProbeTimeout:         30 * time.Second,
		PushTimeout:          time.Minute,
		MaxConcurrentSources: 1,
		PushRatePerSecond:    0.2,
		PushMaxRetries:       0,
	},
	PostureCautious: {
		PollInterval:         15 * time.Minute,
		ProbeTimeout:         15 * time.Second,
		PushTimeout:          45 * time.Second,
		MaxConcurrentSources: 2,
		PushRatePerSecond:    1,
		PushMaxRetries:       1,
	},
	PostureBalanced: {
		PollInterval:         5 * time.Minute,
		ProbeTimeout:         10 * time.Second,
		PushTimeout:          30 * time.Second,
		MaxConcurrentSources: 4,
		PushRatePerSecond:    5,
		PushMaxRetries:       2,
	},
	PostureAggressive: {
		PollInterval:         time.Minute,
		ProbeTimeout:         5 * time.Second,
		PushTimeout:          15 * time.Second,
		MaxConcurrentSources: 16,
		PushRatePerSecond:    0, // unlimited
		PushMaxRetries:       3,
	},
}

// GetProfile returns the behavior profile for a posture
func (p Posture) GetProfile() BehaviorProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
