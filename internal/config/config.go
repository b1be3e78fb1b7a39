package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.nihinconnect/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	// APIBaseURL is the REST backend base URL, e.g. the public tunnel URL.
	APIBaseURL string `toml:"api_base_url"`
}

// Credentials represents the per-session credentials.toml. The access token
// is embedded in the realtime connection URI and sent as a Bearer header on
// REST calls. Refresh mechanics are out of scope for the daemon; a stale
// token surfaces as a 401 from the backend.
type Credentials struct {
	AccessToken string `toml:"access_token"`
	UserID      int64  `toml:"user_id"`
	UserName    string `toml:"user_name"`
	UserAvatar  string `toml:"user_avatar"`
}

// Load reads config from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return writeTOML(path, cfg)
}

// LoadCredentials reads a credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveCredentials writes a credentials file with 0600 permissions.
func SaveCredentials(path string, creds *Credentials) error {
	return writeTOML(path, creds)
}

func writeTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
