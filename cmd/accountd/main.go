package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/matchlobby/pkg/accountd"
	"github.com/NicolasHaas/matchlobby/pkg/datastore"
	"github.com/NicolasHaas/matchlobby/pkg/logging"
	"github.com/NicolasHaas/matchlobby/pkg/version"
)

func main() {
	cfg := accountd.DefaultConfig()
	accountd.LoadFromEnv(&cfg)

	pflag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP bind address")
	pflag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	pflag.StringVar(&cfg.GamesFile, "games-file", cfg.GamesFile, "YAML game catalog imported on startup")
	pflag.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "close a connection idle for this long")
	pflag.BoolVar(&cfg.ExportGames, "export-games", false, "Export the game catalog as YAML and exit")
	logLevel := pflag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := pflag.String("log-format", "text", "Log format: text or json")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.Banner("accountd"))
		return
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	st, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	if cfg.ExportGames {
		defer func() { _ = st.Close() }()
		data, err := accountd.ExportGamesYAML(st.NonTx())
		if err != nil {
			slog.Error("export games", "err", err)
			return
		}
		fmt.Print(string(data))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting account service", "version", version.String(), "db", cfg.DBPath)
	srv := accountd.New(cfg, accountd.Dependencies{Store: st})
	if err := srv.Run(ctx); err != nil {
		slog.Error("account service error", "err", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}
