package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Config is the full mozi configuration, loaded from a JSON5 file.
type Config struct {
	DataDir   string          `json:"dataDir"`
	Log       LogConfig       `json:"log"`
	Cron      CronConfig      `json:"cron"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

type CronConfig struct {
	Enabled           bool   `json:"enabled"`
	StorePath         string `json:"storePath"`         // default <dataDir>/cron/jobs.json
	TickIntervalMs    int    `json:"tickIntervalMs"`    // default 1000
	MaxConcurrentRuns int    `json:"maxConcurrentRuns"` // default 4
	MaxRetries        int    `json:"maxRetries"`        // extra attempts for error-status runs; default 0
	RunLogDB          string `json:"runLogDb"`          // empty disables durable run history
}

type DeliveryConfig struct {
	DefaultChannel    string `json:"defaultChannel"`    // fallback for "last" targets
	SendRatePerMinute int    `json:"sendRatePerMinute"` // per-channel outbound allowance
	SendBurst         int    `json:"sendBurst"`
}

type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"` // OTLP HTTP endpoint
	ServiceName string `json:"serviceName"`
}

// TickInterval returns the poll interval as a duration.
func (c CronConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir: "~/.mozi",
		Log:     LogConfig{Level: "info"},
		Cron: CronConfig{
			Enabled:           true,
			TickIntervalMs:    1000,
			MaxConcurrentRuns: 4,
		},
		Delivery: DeliveryConfig{
			DefaultChannel:    "webchat",
			SendRatePerMinute: 60,
			SendBurst:         10,
		},
		Telemetry: TelemetryConfig{ServiceName: "mozi"},
	}
}

// DefaultPath returns ~/.mozi/config.json5.
func DefaultPath() string {
	return filepath.Join(mustHome(), ".mozi", "config.json5")
}

// Load reads the config file at path, layering it over defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg.finalize()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.finalize()
	return cfg, nil
}

// finalize expands paths and fills derived defaults.
func (c *Config) finalize() {
	c.DataDir = ExpandHome(c.DataDir)
	if c.Cron.StorePath == "" {
		c.Cron.StorePath = filepath.Join(c.DataDir, "cron", "jobs.json")
	} else {
		c.Cron.StorePath = ExpandHome(c.Cron.StorePath)
	}
	if c.Cron.RunLogDB != "" {
		c.Cron.RunLogDB = ExpandHome(c.Cron.RunLogDB)
	}
	if c.Cron.TickIntervalMs <= 0 {
		c.Cron.TickIntervalMs = 1000
	}
	if c.Cron.MaxConcurrentRuns <= 0 {
		c.Cron.MaxConcurrentRuns = 4
	}
	if c.Cron.MaxRetries < 0 {
		c.Cron.MaxRetries = 0
	}
	if c.Delivery.DefaultChannel == "" {
		c.Delivery.DefaultChannel = "webchat"
	}
	if c.Delivery.SendRatePerMinute <= 0 {
		c.Delivery.SendRatePerMinute = 60
	}
	if c.Delivery.SendBurst <= 0 {
		c.Delivery.SendBurst = 10
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "mozi"
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(mustHome(), strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

func mustHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
