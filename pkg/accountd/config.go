package accountd

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds account service configuration.
type Config struct {
	Addr        string        // TCP bind address (e.g. ":9700")
	DBPath      string        // SQLite database path
	GamesFile   string        // YAML game catalog imported on startup
	IdleTimeout time.Duration // per-connection idle limit between calls

	// CLI-only action (run and exit)
	ExportGames bool // export the game catalog as YAML and exit
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        ":9700",
		DBPath:      "accounts.db",
		IdleTimeout: 30 * time.Second,
	}
}

// LoadFromEnv overlays ACCOUNTD_* environment variables onto cfg. Only
// non-empty variables override. Call before flag parsing so flags win.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ACCOUNTD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("ACCOUNTD_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ACCOUNTD_GAMES_FILE"); v != "" {
		cfg.GamesFile = v
	}
	if v, err := strconv.Atoi(os.Getenv("ACCOUNTD_IDLE_TIMEOUT")); err == nil && v > 0 {
		cfg.IdleTimeout = time.Duration(v) * time.Second
	}
}

// Validate checks the config for values the service cannot run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("accountd: listen address is required")
	}
	if c.DBPath == "" {
		return errors.New("accountd: database path is required")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("accountd: idle timeout must be positive")
	}
	return nil
}
