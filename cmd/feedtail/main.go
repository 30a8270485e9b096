// feedtail connects to the CSMS live feed and prints messages to the console.
// Usage: go run ./cmd/feedtail --url wss://csms.example.com/ws/admin
//
// The credential comes from --token, then CSMS_ADMIN_TOKEN. With neither,
// or with --demo, the synthetic demo feed is printed instead.
package main

import (
	"context"
	"encoding/json"
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

	"github.com/rickgao/csms-feed/internal/config"
	"github.com/rickgao/csms-feed/internal/feed"
	"github.com/rickgao/csms-feed/internal/logging"
	"github.com/rickgao/csms-feed/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "feedtail: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	url := flag.String("url", "", "feed endpoint, overrides feed.url")
	token := flag.String("token", "", "admin credential, overrides the session config")
	demo := flag.Bool("demo", false, "use a placeholder credential and print the demo feed")
	interval := flag.Duration("interval", 0, "demo message interval, overrides feed.fallback_interval")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(*configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if *url != "" {
		cfg.Feed.URL = *url
	}
	if *interval > 0 {
		cfg.Feed.FallbackInterval = *interval
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logger := log.Component("feedtail")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	credential := *token
	switch {
	case *demo:
		credential = session.NewPlaceholder(cfg.Feed.PlaceholderPrefix)
	case credential == "":
		credential, err = cfg.CredentialSource().Token(ctx)
		if err != nil {
			logger.Error("failed to resolve credential", "error", err)
			return fmt.Errorf("resolve credential: %w", err)
		}
	}

	mgr := feed.New(cfg.ManagerConfig(), feed.WithLogger(log.Component("feed")))
	defer mgr.Close()

	sub := mgr.Subscribe()
	mgr.Connect(cfg.Feed.URL, credential)

	logger.Info("tailing feed - press Ctrl+C to stop", "endpoint", cfg.Feed.URL)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down...")
			return nil
		case v, ok := <-sub:
			if !ok {
				return nil
			}
			switch ev := v.(type) {
			case feed.StatusEvent:
				printStatus(ev)
			case feed.Message:
				printMessage(ev, *verbose, logger)
			}
		}
	}
}

func printStatus(ev feed.StatusEvent) {
	mode := "live"
	if ev.New.Synthetic {
		mode = "demo"
	}
	line := fmt.Sprintf("[STATUS] %s -> %s (%s)", ev.Old.State, ev.New.State, mode)
	if ev.New.Reason != "" {
		line += " reason=" + ev.New.Reason
	}
	fmt.Println(line)
}

func printMessage(msg feed.Message, verbose bool, logger *slog.Logger) {
	ts := msg.ReceivedAt.Format(time.TimeOnly)
	if !verbose {
		fmt.Printf("[%s] %-18s %-9s %d bytes\n", ts, msg.Kind, msg.Source, len(msg.Payload))
		return
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		logger.Warn("failed to format message", "error", err)
		return
	}
	fmt.Printf("[%s] %s\n", ts, data)
}
