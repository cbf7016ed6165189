package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/matchlobby/pkg/match"
)

// Config holds lobby configuration.
//
// Precedence (highest wins): CLI flags, environment, YAML config file,
// DefaultConfig.
type Config struct {
	Addr            string        `yaml:"addr"`             // TCP bind address for lobby clients
	AccountsAddr    string        `yaml:"accounts_addr"`    // account service address
	AccountsTimeout time.Duration `yaml:"accounts_timeout"` // per-call bound for the account service
	MetricsAddr     string        `yaml:"metrics_addr"`     // HTTP bind for /metrics (empty = disabled)

	BindHost         string        `yaml:"game_bind_host"`     // interface match endpoints bind to
	AdvertiseHost    string        `yaml:"advertise_host"`     // host handed to players in game_started
	PortMin          int           `yaml:"port_min"`           // match port range; 0/0 = OS-assigned
	PortMax          int           `yaml:"port_max"`           //
	MatchIdle        time.Duration `yaml:"match_idle"`         // idle expiry for a running match
	ForceStopTimeout time.Duration `yaml:"force_stop_timeout"` // bound on delivering force_stop

	GamesDir        string        `yaml:"games_dir"`        // <dir>/<game>/<file> served by download_game
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // per-frame write deadline on client connections
	TransferTimeout time.Duration `yaml:"transfer_timeout"` // deadline for one bulk download incl. ack

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:             ":18900",
		AccountsAddr:     "127.0.0.1:19800",
		AccountsTimeout:  3 * time.Second,
		MetricsAddr:      ":18902",
		BindHost:         "0.0.0.0",
		AdvertiseHost:    "127.0.0.1",
		MatchIdle:        10 * time.Minute,
		ForceStopTimeout: 2 * time.Second,
		GamesDir:         "server_games",
		WriteTimeout:     5 * time.Second,
		TransferTimeout:  2 * time.Minute,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys absent from
// the file keep their current value; unknown keys are an error.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from operator CLI flag
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays environment variables onto cfg. Only non-empty
// variables override. Call before flag parsing so flags win.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LOBBY_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LOBBY_ACCOUNTS_ADDR"); v != "" {
		cfg.AccountsAddr = v
	}
	if v := os.Getenv("LOBBY_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("GAME_BIND_HOST"); v != "" {
		cfg.BindHost = v
	}
	if v := os.Getenv("ADVERTISE_HOST"); v != "" {
		cfg.AdvertiseHost = v
	}
	if v := envInt("LOBBY_PORT_MIN"); v > 0 {
		cfg.PortMin = v
	}
	if v := envInt("LOBBY_PORT_MAX"); v > 0 {
		cfg.PortMax = v
	}
	if v := envDuration("LOBBY_MATCH_IDLE"); v > 0 {
		cfg.MatchIdle = v
	}
	if v := os.Getenv("LOBBY_GAMES_DIR"); v != "" {
		cfg.GamesDir = v
	}
	if v := os.Getenv("LOBBY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks the config for values the lobby cannot run with.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("server: invalid listen address %q: %w", c.Addr, err)
	}
	if _, _, err := net.SplitHostPort(c.AccountsAddr); err != nil {
		return fmt.Errorf("server: invalid accounts address %q: %w", c.AccountsAddr, err)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("server: invalid metrics address %q: %w", c.MetricsAddr, err)
		}
	}
	if c.AccountsTimeout <= 0 || c.WriteTimeout <= 0 || c.TransferTimeout <= 0 || c.ForceStopTimeout <= 0 {
		return errors.New("server: timeouts must be positive")
	}
	if err := c.matchConfig().Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (c Config) matchConfig() match.Config {
	return match.Config{
		BindHost:      c.BindHost,
		AdvertiseHost: c.AdvertiseHost,
		PortMin:       c.PortMin,
		PortMax:       c.PortMax,
		IdleTimeout:   c.MatchIdle,
		ReadTimeout:   match.DefaultConfig().ReadTimeout,
	}
}

func envInt(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

// envDuration accepts either a Go duration ("90s") or bare seconds.
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
