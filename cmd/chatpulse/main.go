package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/wesm/chatpulse/internal/config"
	"github.com/wesm/chatpulse/internal/db"
	"github.com/wesm/chatpulse/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	configDebounce  = 500 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := newLogger(os.Stderr, os.Getenv("CHATPULSE_DEBUG") != "")

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:], logger)
			return
		case "import":
			exitOnError(logger, "import",
				runImport(os.Args[2:], os.Stdout, logger))
			return
		case "report":
			exitOnError(logger, "report",
				runReport(os.Args[2:], os.Stdout, logger))
			return
		case "version", "--version", "-v":
			fmt.Printf("chatpulse %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage(os.Stdout)
			return
		}
	}

	runServe(os.Args[1:], logger)
}

// exitOnError exits non-zero when a subcommand failed. A -h request
// has already printed usage.
func exitOnError(logger zerolog.Logger, cmd string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		logger.Fatal().Err(err).Msg(cmd + " failed")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `chatpulse %s - conversation analytics for chat agents

Computes daily activity, KPIs with period-over-period trends, an
engagement funnel, new vs returning leads and an agent leaderboard
from a tenant's chat event store, and serves them as a JSON API.

Usage:
  chatpulse [flags]           Start the server (default command)
  chatpulse serve [flags]     Start the server (explicit)
  chatpulse import [flags] FILE...
                              Load NDJSON table exports ("-" for stdin)
  chatpulse report [flags]    Print every view for a tenant as JSON
  chatpulse version           Show version information
  chatpulse help              Show this help

Store flags (all commands):
  -data-dir string    Data directory (config.json, default database)
  -dsn string         SQLite path or libsql:// URL

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8080)
  -timezone string    Default reporting timezone (default "UTC")
  -merge-mode string  All-agents merge: legacy or accurate

Import flags:
  -tenant string      Tenant for rows without one; other tenants are skipped
  -batch-size int     Rows per transaction (default 500)

Report flags:
  -tenant string      Tenant to report on (required)
  -agent string       Agent id (default: all agents)
  -from, -to string   Date range, YYYY-MM-DD (default: last 30 days)

Environment variables:
  CHATPULSE_DATA_DIR      Data directory
  CHATPULSE_DSN           Event store DSN
  CHATPULSE_AUTH_TOKEN    libsql auth token
  CHATPULSE_TIMEZONE      Default reporting timezone
  CHATPULSE_MERGE_MODE    legacy or accurate
  CHATPULSE_DEBUG         Enable debug logging

Data is stored in ~/.chatpulse/ by default.
`, version)
}

func runServe(args []string, logger zerolog.Logger) {
	fs := flag.NewFlagSet("chatpulse", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: chatpulse [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	cfg := mustLoadConfig(fs, args, logger)

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("opening event store")
	}
	defer store.Close()

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		logger.Warn().Int("port", cfg.Port).Int("using", port).
			Msg("port in use")
	}
	cfg.Port = port

	srv := server.New(cfg, store,
		server.WithLogger(logger),
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	watcher, err := config.Watch(cfg, fs, configDebounce, logger, srv.Reload)
	if err != nil {
		logger.Warn().Err(err).Msg("config hot reload unavailable")
	} else {
		defer watcher.Stop()
	}

	ctx, stop := notifyContext()
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}
}

// mustLoadConfig parses args into fs and loads the layered config.
func mustLoadConfig(
	fs *flag.FlagSet, args []string, logger zerolog.Logger,
) config.Config {
	cfg, err := loadConfig(fs, args)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading config")
	}
	return cfg
}

func loadConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	if err := fs.Parse(args); err != nil {
		return config.Config{}, fmt.Errorf("parsing flags: %w", err)
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return cfg, fmt.Errorf("creating data dir: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured local or hosted event store.
func openStore(cfg config.Config) (*db.DB, error) {
	return db.OpenDSN(cfg.StoreDSN(), cfg.AuthToken)
}
