package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/matchlobby/pkg/gateway"
	"github.com/NicolasHaas/matchlobby/pkg/logging"
	"github.com/NicolasHaas/matchlobby/pkg/server"
	"github.com/NicolasHaas/matchlobby/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	fs := pflag.NewFlagSet("lobby", pflag.ExitOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP bind address for lobby clients")
	fs.StringVar(&cfg.AccountsAddr, "accounts", cfg.AccountsAddr, "account service address")
	fs.DurationVar(&cfg.AccountsTimeout, "accounts-timeout", cfg.AccountsTimeout, "per-call timeout for the account service")
	fs.StringVar(&cfg.BindHost, "bind-host", cfg.BindHost, "interface match endpoints bind to")
	fs.StringVar(&cfg.AdvertiseHost, "advertise-host", cfg.AdvertiseHost, "host announced to players in game_started")
	fs.IntVar(&cfg.PortMin, "port-min", cfg.PortMin, "lowest match port (0 with --port-max 0: OS-assigned)")
	fs.IntVar(&cfg.PortMax, "port-max", cfg.PortMax, "highest match port")
	fs.DurationVar(&cfg.MatchIdle, "match-idle", cfg.MatchIdle, "stop a running match after this long")
	fs.StringVar(&cfg.GamesDir, "games-dir", cfg.GamesDir, "directory holding <game>/<package file>")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: "+logging.LevelNames())
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	configPath := fs.StringP("config", "c", "", "YAML config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(version.Banner("lobby"))
		return
	}

	// Precedence: defaults, config file, environment, flags.
	base := server.DefaultConfig()
	if *configPath != "" {
		if err := server.LoadConfigFile(*configPath, &base); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	server.LoadFromEnv(&base)
	changed := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = f.Value.String() })
	cfg = base
	for name, val := range changed {
		_ = fs.Set(name, val)
	}

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	slog.Info("starting lobby", "version", version.String())

	accounts := gateway.New(cfg.AccountsAddr, cfg.AccountsTimeout)
	srv := server.New(cfg, server.Dependencies{Accounts: accounts})
	if err := srv.Run(context.Background()); err != nil {
		slog.Error("lobby error", "err", err)
		os.Exit(1)
	}
}
