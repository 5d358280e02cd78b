package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"valvecloud/config"
	"valvecloud/internal/logging"
	"valvecloud/internal/tuya"
	"valvecloud/internal/valve"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	action := flag.String("action", "state", "Action to perform: open, close, state, meta, check")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout for the action")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *useEnv)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New("warn", "text")
	client, err := tuya.NewClient(tuya.Credentials{
		BaseURL:      cfg.Tuya.BaseURL,
		AccessID:     cfg.Tuya.AccessID,
		AccessSecret: cfg.Tuya.AccessSecret,
		DeviceID:     cfg.Tuya.DeviceID,
	}, nil, logger)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := perform(ctx, *action, client, cfg, logger); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func perform(ctx context.Context, action string, client *tuya.Client, cfg *config.Config, logger *slog.Logger) error {
	controller := valve.NewController(client, cfg.Poll.SettleDelay(), logger)

	switch action {
	case "open":
		if err := controller.Open(ctx); err != nil {
			return err
		}
		state, err := controller.PollState(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Open command accepted; valve reports %s\n", state)

	case "close":
		if err := controller.Close(ctx); err != nil {
			return err
		}
		state, err := controller.PollState(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Close command accepted; valve reports %s\n", state)

	case "state":
		state, err := controller.PollState(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Valve is %s\n", state)

	case "meta":
		meta, err := client.DeviceMetadata(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Name:         %s\n", meta.Name)
		fmt.Printf("Model:        %s\n", meta.Model)
		fmt.Printf("MAC:          %s\n", meta.MAC)
		fmt.Printf("Serial:       %s\n", meta.Serial)
		fmt.Printf("Category:     %s\n", meta.Category)
		fmt.Printf("Product:      %s (%s)\n", meta.ProductName, meta.ProductID)
		fmt.Printf("Online:       %v\n", meta.Online)

	case "check":
		if err := client.Validate(ctx); err != nil {
			return fmt.Errorf("credential check failed: %w", err)
		}
		fmt.Println("Credentials and device reachable.")

	default:
		return fmt.Errorf("unknown action %q (want open, close, state, meta, or check)", action)
	}
	return nil
}

func loadConfig(path string, useEnv bool) (*config.Config, error) {
	if useEnv {
		return config.LoadFromEnv()
	}

	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrConfigFileNotFound) {
		fmt.Printf("Config file not found at %s, trying environment variables...\n", path)
		return config.LoadFromEnv()
	}
	return cfg, err
}
