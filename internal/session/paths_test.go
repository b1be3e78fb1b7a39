package session

import (
	"strings"
	"testing"
)

func TestPathsAreSessionScoped(t *testing.T) {
	paths := []string{
		SocketPath("alpha"),
		CacheDBPath("alpha"),
		CredentialsPath("alpha"),
		LogPath("alpha"),
	}
	for _, p := range paths {
		if !strings.Contains(p, "sessions/alpha") {
			t.Errorf("path %q not scoped under sessions/alpha", p)
		}
	}
}

func TestConfigPathIsGlobal(t *testing.T) {
	if strings.Contains(ConfigPath(), "sessions") {
		t.Errorf("ConfigPath() = %q should not be session scoped", ConfigPath())
	}
	if !strings.HasSuffix(ConfigPath(), "config.toml") {
		t.Errorf("ConfigPath() = %q, want config.toml suffix", ConfigPath())
	}
}
