package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pliefoog/helmdash/internal/alarms"
)

// LoadConfigDir loads all configuration files from a directory:
// dashboard.yaml (required), thresholds.yaml and alarms.yaml
// (optional).
func LoadConfigDir(dir string) (*Config, error) {
	cfg := &Config{
		// Seeding before unmarshal keeps factory defaults for any
		// boolean key the file omits.
		Alarms: alarms.DefaultSettings(),
	}

	if err := loadYAML(filepath.Join(dir, "dashboard.yaml"), &cfg.Dashboard); err != nil {
		return nil, fmt.Errorf("loading dashboard.yaml: %w", err)
	}

	thresholdsPath := filepath.Join(dir, "thresholds.yaml")
	if _, err := os.Stat(thresholdsPath); err == nil {
		var wrapper struct {
			Thresholds []alarms.Threshold `yaml:"thresholds"`
		}
		if err := loadYAML(thresholdsPath, &wrapper); err != nil {
			return nil, fmt.Errorf("loading thresholds.yaml: %w", err)
		}
		cfg.Thresholds = wrapper.Thresholds
	}

	alarmsPath := filepath.Join(dir, "alarms.yaml")
	if _, err := os.Stat(alarmsPath); err == nil {
		if err := loadYAML(alarmsPath, &cfg.Alarms); err != nil {
			return nil, fmt.Errorf("loading alarms.yaml: %w", err)
		}
	}

	// Set defaults
	if cfg.Dashboard.Feed.QueueSize == 0 {
		cfg.Dashboard.Feed.QueueSize = 256
	}
	if cfg.Dashboard.Feed.ReconnectMin == 0 {
		cfg.Dashboard.Feed.ReconnectMin = time.Second
	}
	if cfg.Dashboard.Feed.ReconnectMax == 0 {
		cfg.Dashboard.Feed.ReconnectMax = 30 * time.Second
	}
	if cfg.Dashboard.API.Listen == "" {
		cfg.Dashboard.API.Listen = ":8080"
	}
	if cfg.Dashboard.Webhook.Timeout == 0 {
		cfg.Dashboard.Webhook.Timeout = 10 * time.Second
	}
	if cfg.Dashboard.Cadence.Evaluate == 0 {
		cfg.Dashboard.Cadence.Evaluate = time.Second
	}
	if cfg.Dashboard.Cadence.Reconcile == 0 {
		cfg.Dashboard.Cadence.Reconcile = 10 * time.Second
	}
	if cfg.Dashboard.Cadence.Freshness == 0 {
		cfg.Dashboard.Cadence.Freshness = 10 * time.Second
	}
	if cfg.Dashboard.Grid.RowCapacity == 0 {
		cfg.Dashboard.Grid.RowCapacity = 4
	}
	if cfg.Dashboard.Discovery.MissLimit == 0 {
		cfg.Dashboard.Discovery.MissLimit = 3
	}
	if cfg.Dashboard.History.Retention == 0 {
		cfg.Dashboard.History.Retention = 50
	}

	// Validate configuration
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// ValidateConfig validates the configuration. Malformed thresholds are
// rejected here so evaluation never sees them.
func ValidateConfig(cfg *Config) error {
	if cfg.Dashboard.Feed.URL == "" {
		return fmt.Errorf("feed: url is required")
	}
	if cfg.Dashboard.Feed.ReconnectMin > cfg.Dashboard.Feed.ReconnectMax {
		return fmt.Errorf("feed: reconnect_min %s exceeds reconnect_max %s",
			cfg.Dashboard.Feed.ReconnectMin, cfg.Dashboard.Feed.ReconnectMax)
	}
	if cfg.Dashboard.Cadence.Evaluate < 0 || cfg.Dashboard.Cadence.Reconcile < 0 || cfg.Dashboard.Cadence.Freshness < 0 {
		return fmt.Errorf("cadence: intervals must be positive")
	}
	if cfg.Dashboard.Grid.RowCapacity < 1 {
		return fmt.Errorf("grid: row_capacity must be at least 1")
	}
	if cfg.Dashboard.Discovery.MissLimit < 1 {
		return fmt.Errorf("discovery: miss_limit must be at least 1")
	}
	if cfg.Dashboard.History.Retention < 1 {
		return fmt.Errorf("history: retention must be at least 1")
	}

	// The env var itself is resolved at startup, not here.
	if cfg.Dashboard.Webhook.Enabled && cfg.Dashboard.Webhook.URLEnv == "" {
		return fmt.Errorf("webhook: url_env is required when enabled")
	}
	if cfg.Dashboard.Relay.Enabled && cfg.Dashboard.Relay.Address == "" {
		return fmt.Errorf("relay: address is required when enabled")
	}

	seen := make(map[string]bool, len(cfg.Thresholds))
	for _, t := range cfg.Thresholds {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return fmt.Errorf("threshold %s: duplicate id", t.ID)
		}
		seen[t.ID] = true
	}

	if cfg.Alarms.AutoAckDelay < 0 {
		return fmt.Errorf("alarms: auto_acknowledge_delay must be positive")
	}

	return nil
}
