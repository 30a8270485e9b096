// feedmonitor runs the CSMS live feed manager and serves it to UI consumers.
// Usage: go run ./cmd/feedmonitor --config configs/feedmonitor.example.yaml
//
// The admin credential is read from session.token, session.token_file or
// the CSMS_ADMIN_TOKEN environment variable, in that order. Without one the
// feed runs in demo mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/csms-feed/internal/config"
	"github.com/rickgao/csms-feed/internal/feed"
	"github.com/rickgao/csms-feed/internal/logging"
	"github.com/rickgao/csms-feed/internal/monitor"
	"github.com/rickgao/csms-feed/internal/session"
	"github.com/rickgao/csms-feed/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "feedmonitor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	url := flag.String("url", "", "override feed.url")
	demo := flag.Bool("demo", false, "sign in with a placeholder token and run the demo feed")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := loadConfig(*configPath, *url)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logger := log.Component("feedmonitor")

	logger.Info("starting feedmonitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token, err := resolveCredential(ctx, cfg, *demo)
	if err != nil {
		return fmt.Errorf("resolve credential: %w", err)
	}
	logger.Info("credential resolved",
		"present", token != "",
		"placeholder", token != "" && session.IsPlaceholder(token, cfg.Feed.PlaceholderPrefix),
	)

	mgr := feed.New(cfg.ManagerConfig(), feed.WithLogger(log.Component("feed")))
	defer mgr.Close()

	srv := monitor.NewServer(monitor.Config{
		Addr:           cfg.Monitor.Addr,
		RecentLimit:    cfg.Monitor.RecentLimit,
		ReconnectRate:  cfg.Monitor.ReconnectRate,
		ReconnectBurst: cfg.Monitor.ReconnectBurst,
	}, mgr, log.Component("monitor"))

	mgr.Connect(cfg.Feed.URL, token)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		logStats(gctx, mgr, logger)
		return nil
	})

	logger.Info("feedmonitor running",
		"endpoint", cfg.Feed.URL,
		"monitor", cfg.Monitor.Addr,
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	logger.Info("shutting down...")
	return nil
}

func loadConfig(path, url string) (*config.Config, error) {
	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.LoadWithDefaults(path); err != nil {
			return nil, err
		}
	}
	if url != "" {
		cfg.Feed.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func resolveCredential(ctx context.Context, cfg *config.Config, demo bool) (string, error) {
	if demo {
		return session.NewPlaceholder(cfg.Feed.PlaceholderPrefix), nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return cfg.CredentialSource().Token(ctx)
}

func logStats(ctx context.Context, mgr *feed.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := mgr.Stats()
			logger.Info("stats",
				"state", stats.Status.State,
				"synthetic", stats.Status.Synthetic,
				"attempts", stats.Attempts,
				"buffered", stats.Buffer.Count,
				"received", stats.Buffer.TotalReceived,
				"evicted", stats.Buffer.TotalEvicted,
			)
		}
	}
}
