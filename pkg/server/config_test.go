package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobby.yaml")
	data := `
addr: ":19000"
advertise_host: lobby.example.net
port_min: 20000
port_max: 20010
match_idle: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))

	want := DefaultConfig()
	want.Addr = ":19000"
	want.AdvertiseHost = "lobby.example.net"
	want.PortMin, want.PortMax = 20000, 20010
	want.MatchIdle = 90 * time.Second
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadConfigFile mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	assert.Error(t, LoadConfigFile(filepath.Join(dir, "missing.yaml"), &cfg))

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("listen_port: 1\n"), 0o600))
	assert.Error(t, LoadConfigFile(unknown, &cfg))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	require.NoError(t, LoadConfigFile(empty, &cfg))
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("empty file changed config (-want +got):\n%s", diff)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOBBY_ADDR", ":18000")
	t.Setenv("LOBBY_ACCOUNTS_ADDR", "accounts:19800")
	t.Setenv("GAME_BIND_HOST", "127.0.0.1")
	t.Setenv("ADVERTISE_HOST", "play.example")
	t.Setenv("LOBBY_PORT_MIN", "30000")
	t.Setenv("LOBBY_PORT_MAX", "30100")
	t.Setenv("LOBBY_MATCH_IDLE", "120")
	t.Setenv("LOBBY_LOG_LEVEL", "debug")
	t.Setenv("LOBBY_METRICS_ADDR", "")

	cfg := DefaultConfig()
	LoadFromEnv(&cfg)

	assert.Equal(t, ":18000", cfg.Addr)
	assert.Equal(t, "accounts:19800", cfg.AccountsAddr)
	assert.Equal(t, "127.0.0.1", cfg.BindHost)
	assert.Equal(t, "play.example", cfg.AdvertiseHost)
	assert.Equal(t, 30000, cfg.PortMin)
	assert.Equal(t, 30100, cfg.PortMax)
	assert.Equal(t, 2*time.Minute, cfg.MatchIdle)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultConfig().MetricsAddr, cfg.MetricsAddr, "empty variables do not override")
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", 0},
		{"45s", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"30", 30 * time.Second},
		{"soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("LOBBY_TEST_DURATION", tt.val)
			assert.Equal(t, tt.want, envDuration("LOBBY_TEST_DURATION"))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"metrics disabled", func(c *Config) { c.MetricsAddr = "" }, false},
		{"bad listen addr", func(c *Config) { c.Addr = "18900" }, true},
		{"bad accounts addr", func(c *Config) { c.AccountsAddr = "localhost" }, true},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "nope" }, true},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }, true},
		{"half port range", func(c *Config) { c.PortMin = 20000 }, true},
		{"inverted port range", func(c *Config) { c.PortMin, c.PortMax = 20010, 20000 }, true},
		{"port range", func(c *Config) { c.PortMin, c.PortMax = 20000, 20010 }, false},
		{"zero match idle", func(c *Config) { c.MatchIdle = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
