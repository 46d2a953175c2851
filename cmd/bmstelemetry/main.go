// cmd/bmstelemetry/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/bms-telemetry/internal/config"
	"github.com/tamzrod/bms-telemetry/internal/publish"
	"github.com/tamzrod/bms-telemetry/internal/reading"
	"github.com/tamzrod/bms-telemetry/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		slog.Error("usage: bmstelemetry <config.yaml>")
		os.Exit(2)
	}
	cfgPath := os.Args[1]

	// Local .env overlays the process environment; absence is fine.
	godotenv.Load()

	log := newLogger()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	applyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		log.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	config.Normalize(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Downstream publishers
	// --------------------

	var onSnapshot func(reading.Snapshot)
	if cfg.MQTT.Broker != "" {
		pub, err := publish.NewMQTT(cfg.MQTT, log)
		if err != nil {
			log.Error("mqtt connect failed", "err", err)
			os.Exit(1)
		}
		onSnapshot = func(snap reading.Snapshot) {
			if err := pub.Publish(snap); err != nil {
				log.Warn("mqtt publish failed", "link", snap.LinkID, "err", err)
			}
		}
	}

	// --------------------
	// Per-link supervisors
	// --------------------

	g, ctx := errgroup.WithContext(ctx)

	sources := make([]publish.Source, 0, len(cfg.Links))
	for _, lc := range cfg.Links {
		sup := session.New(session.Config{
			Link:       lc,
			OnSnapshot: onSnapshot,
			Logger:     log,
		})
		sources = append(sources, sup)

		g.Go(func() error { return sup.Run(ctx) })
	}

	if cfg.HTTP.Listen != "" {
		rest := publish.NewREST(cfg.HTTP.Listen, sources, log)
		g.Go(func() error { return rest.Run(ctx) })
	}

	log.Info("started", "links", len(cfg.Links))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown with error", "err", err)
		os.Exit(1)
	}
	log.Info("stopped")
}

// newLogger builds the process logger; BMS_LOG_LEVEL=debug widens it.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("BMS_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}

// applyEnvOverrides keeps broker credentials out of the config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("BMS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("BMS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("BMS_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
}
