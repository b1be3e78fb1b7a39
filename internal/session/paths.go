package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.nihinconnect.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nihinconnect")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the daemon control socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "chatd.sock")
}

// CacheDBPath returns the local conversation cache path for a session.
func CacheDBPath(name string) string {
	return filepath.Join(Dir(name), "cache.db")
}

// CredentialsPath returns the per-session credentials file path.
func CredentialsPath(name string) string {
	return filepath.Join(Dir(name), "credentials.toml")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(Dir(name), "logs", "chatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), filepath.Join(Dir(name), "logs")} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
