package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

const (
	// DefaultBaseURL is the US data-center endpoint; other regions use their
	// own base URL
	DefaultBaseURL = "https://openapi.tuyaus.com"

	DefaultPollSeconds = 30
	// MinPollSeconds keeps the poll loop from hammering the vendor rate limits
	MinPollSeconds = 10

	DefaultSettleDelayMS = 800
)

// Config represents the application configuration
type Config struct {
	Tuya     TuyaConfig     `json:"tuya"`
	Poll     PollConfig     `json:"poll"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

// TuyaConfig contains the Tuya Cloud project credentials and target device
type TuyaConfig struct {
	BaseURL      string `json:"base_url"`
	AccessID     string `json:"access_id"`
	AccessSecret string `json:"access_secret"`
	DeviceID     string `json:"device_id"`
}

// PollConfig controls the state polling loop
type PollConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	SettleDelayMS   int `json:"settle_delay_ms"`
}

// Interval returns the poll interval as a duration
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// SettleDelay returns the trigger-to-read settle delay as a duration
func (p PollConfig) SettleDelay() time.Duration {
	return time.Duration(p.SettleDelayMS) * time.Millisecond
}

// DatabaseConfig contains storage settings. An empty path disables
// persistence.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Validate checks the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Tuya.BaseURL == "" {
		c.Tuya.BaseURL = DefaultBaseURL
	}
	if c.Tuya.AccessID == "" || c.Tuya.AccessSecret == "" {
		return fmt.Errorf("%w: Tuya access ID and secret are required", ErrInvalidConfig)
	}
	if c.Tuya.DeviceID == "" {
		return fmt.Errorf("%w: Tuya device ID is required", ErrInvalidConfig)
	}

	if c.Poll.IntervalSeconds == 0 {
		c.Poll.IntervalSeconds = DefaultPollSeconds
	}
	if c.Poll.IntervalSeconds < MinPollSeconds {
		return fmt.Errorf("%w: poll interval must be at least %d seconds", ErrInvalidConfig, MinPollSeconds)
	}

	if c.Poll.SettleDelayMS == 0 {
		c.Poll.SettleDelayMS = DefaultSettleDelayMS
	}
	if c.Poll.SettleDelayMS < 0 {
		return fmt.Errorf("%w: settle delay must not be negative", ErrInvalidConfig)
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables, useful for
// containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Tuya: TuyaConfig{
			BaseURL:      getEnv("VALVED_TUYA_BASE_URL", DefaultBaseURL),
			AccessID:     getEnv("VALVED_TUYA_ACCESS_ID", ""),
			AccessSecret: getEnv("VALVED_TUYA_ACCESS_SECRET", ""),
			DeviceID:     getEnv("VALVED_TUYA_DEVICE_ID", ""),
		},
		Poll: PollConfig{
			IntervalSeconds: getEnvInt("VALVED_POLL_INTERVAL", DefaultPollSeconds),
			SettleDelayMS:   getEnvInt("VALVED_POLL_SETTLE_MS", DefaultSettleDelayMS),
		},
		Database: DatabaseConfig{
			Path: getEnv("VALVED_DB_PATH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("VALVED_LOG_LEVEL", "info"),
			Format: getEnv("VALVED_LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}
