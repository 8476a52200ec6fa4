package config

import (
	"os"
	"path/filepath"
)

// configDirOverride is set by tests to redirect ConfigDir.
var configDirOverride string

// ConfigDir returns the config directory for surfbridge.
func ConfigDir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "surfbridge")
}

// DataDir returns ~/.local/share/surfbridge, creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "share", "surfbridge")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultSocketPath returns the default local-domain socket path, overridable
// by SURF_SOCKET_PATH.
func DefaultSocketPath() string {
	if p := os.Getenv("SURF_SOCKET_PATH"); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "surf.sock")
}

// DefaultCapturePath returns the default base directory for the
// network-capture store, overridable by SURF_NETWORK_PATH.
func DefaultCapturePath() string {
	if p := os.Getenv("SURF_NETWORK_PATH"); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "surf")
}
