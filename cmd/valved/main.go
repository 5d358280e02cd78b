package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"valvecloud/config"
	"valvecloud/internal/logging"
	"valvecloud/internal/poller"
	"valvecloud/internal/storage/sqlite"
	"valvecloud/internal/tuya"
	"valvecloud/internal/valve"
)

const (
	defaultConfigPath = "config.json"
	startupTimeout    = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("valved: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *useEnv)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting valved",
		"device_id", cfg.Tuya.DeviceID,
		"base_url", cfg.Tuya.BaseURL,
		"poll_interval", cfg.Poll.Interval())

	var store *sqlite.Store
	var tokenStore tuya.TokenStore
	if cfg.Database.Path != "" {
		store, err = sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		tokenStore = store
	}

	client, err := tuya.NewClient(tuya.Credentials{
		BaseURL:      cfg.Tuya.BaseURL,
		AccessID:     cfg.Tuya.AccessID,
		AccessSecret: cfg.Tuya.AccessSecret,
		DeviceID:     cfg.Tuya.DeviceID,
	}, tokenStore, logger)
	if err != nil {
		return err
	}

	logDeviceMetadata(client, store, cfg.Tuya.DeviceID, logger)

	controller := valve.NewController(client, cfg.Poll.SettleDelay(), logger)
	p := poller.NewPoller(controller, cfg.Poll.Interval(), nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info("shutting down", "signal", sig.String())
	p.Stop()
	cancel()
	return nil
}

// logDeviceMetadata performs the one-shot metadata fetch, preferring the
// local cache so restarts stay off the cloud. Failures are logged, not fatal;
// metadata is display-only.
func logDeviceMetadata(client *tuya.Client, store *sqlite.Store, deviceID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if store != nil {
		if meta, err := store.GetDeviceMetadata(ctx, deviceID); err == nil && meta != nil {
			logger.Info("device metadata (cached)",
				"name", meta.Name, "model", meta.Model, "mac", meta.MAC, "serial", meta.Serial)
			return
		}
	}

	meta, err := client.DeviceMetadata(ctx)
	if err != nil {
		logger.Warn("failed to fetch device metadata", "error", err)
		return
	}
	logger.Info("device metadata",
		"name", meta.Name, "model", meta.Model, "mac", meta.MAC,
		"serial", meta.Serial, "online", meta.Online)

	if store != nil {
		if err := store.SaveDeviceMetadata(ctx, meta); err != nil {
			logger.Warn("failed to cache device metadata", "error", err)
		}
	}
}

func loadConfig(path string, useEnv bool) (*config.Config, error) {
	if useEnv {
		return config.LoadFromEnv()
	}

	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrConfigFileNotFound) {
		log.Printf("Config file not found at %s, trying environment variables...", path)
		return config.LoadFromEnv()
	}
	return cfg, err
}
