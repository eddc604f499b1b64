package config

import (
	"time"

	"github.com/pliefoog/helmdash/internal/alarms"
	"github.com/pliefoog/helmdash/internal/sensors"
)

// Config represents the complete helmdash configuration.
type Config struct {
	Dashboard  DashboardConfig
	Thresholds []alarms.Threshold
	Alarms     alarms.Settings
}

// DashboardConfig contains the daemon settings from dashboard.yaml.
type DashboardConfig struct {
	Feed      FeedConfig              `yaml:"feed"`
	API       APIConfig               `yaml:"api"`
	Webhook   WebhookConfig           `yaml:"webhook,omitempty"`
	Relay     RelayConfig             `yaml:"relay,omitempty"`
	Cadence   CadenceConfig           `yaml:"cadence"`
	Units     sensors.UnitPreferences `yaml:"units"`
	Grid      GridConfig              `yaml:"grid"`
	Discovery DiscoveryConfig         `yaml:"discovery"`
	History   HistoryConfig           `yaml:"history"`
}

// FeedConfig points at the vessel gateway delivering decoded readings
// and discovery scans.
type FeedConfig struct {
	URL          string        `yaml:"url"`
	QueueSize    int           `yaml:"queue_size,omitempty"`
	ReconnectMin time.Duration `yaml:"reconnect_min,omitempty"`
	ReconnectMax time.Duration `yaml:"reconnect_max,omitempty"`
}

// APIConfig configures the control API listener. The JWT secret is
// referenced by environment variable name, never stored in the file;
// an empty reference leaves the API open.
type APIConfig struct {
	Listen       string `yaml:"listen,omitempty"`
	JWTSecretEnv string `yaml:"jwt_secret_env,omitempty"`
}

// WebhookConfig configures the outbound alarm webhook channel. The
// destination is referenced by environment variable name.
type WebhookConfig struct {
	Enabled bool          `yaml:"enabled"`
	URLEnv  string        `yaml:"url_env,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// RelayConfig configures the shore-link event relay. Vessel names the
// boat in relayed frames so a shore service can tell fleets apart.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"`
	Vessel  string `yaml:"vessel,omitempty"`
}

// CadenceConfig sets the periodic loop intervals and the metric
// freshness window.
type CadenceConfig struct {
	Evaluate  time.Duration `yaml:"evaluate,omitempty"`
	Reconcile time.Duration `yaml:"reconcile,omitempty"`
	Freshness time.Duration `yaml:"freshness,omitempty"`
}

// GridConfig sets the dashboard grid geometry.
type GridConfig struct {
	RowCapacity int `yaml:"row_capacity,omitempty"`
}

// DiscoveryConfig tunes instance presence tracking.
type DiscoveryConfig struct {
	MissLimit int `yaml:"miss_limit,omitempty"`
}

// HistoryConfig bounds the alarm history.
type HistoryConfig struct {
	Retention int `yaml:"retention,omitempty"`
}
