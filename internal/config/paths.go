package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "CMDBSYNC_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "cmdbsync.yaml"
	// ConfigDirName is the directory under XDG and /etc
	ConfigDirName = "cmdbsync"
)

// configCandidates lists config locations in priority order:
// $CMDBSYNC_CONFIG, ./cmdbsync.yaml, $XDG_CONFIG_HOME/cmdbsync/config.yaml,
// ~/.config/cmdbsync/config.yaml, /etc/cmdbsync/config.yaml
func configCandidates() []string {
	var paths []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	if abs, err := filepath.Abs(ConfigFileName); err == nil {
		paths = append(paths, abs)
	} else {
		paths = append(paths, ConfigFileName)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the first existing config file, or "" when there is none
func FindConfigPath() string {
	for _, p := range configCandidates() {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// EnsureConfigDir creates the directory of configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolvePath makes a relative path relative to the directory of the
// config file it appeared in
func ResolvePath(configPath, path string) string {
	if path == "" || filepath.IsAbs(path) || configPath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(configPath), path)
}
