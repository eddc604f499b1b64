package telemetry

import "time"

// AlarmState is the display overlay derived for a metric at read time.
type AlarmState string

const (
	AlarmStateOk       AlarmState = "ok"
	AlarmStateWarning  AlarmState = "warning"
	AlarmStateCritical AlarmState = "critical"
	AlarmStateStale    AlarmState = "stale"
)

// Reading is one decoded observation delivered by the gateway feed.
// Values arrive in SI units; the store never converts on ingest.
type Reading struct {
	SensorType string    `json:"sensorType"`
	Instance   int       `json:"instance"`
	MetricKey  string    `json:"metricKey"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
}

// Metric is the enriched read model of one stored metric. Enrichment
// (unit conversion, staleness, alarm overlay) happens only here, never
// on the version-check path.
type Metric struct {
	SensorType   string     `json:"sensorType"`
	Instance     int        `json:"instance"`
	MetricKey    string     `json:"metricKey"`
	RawValue     float64    `json:"rawValue"`
	Unit         string     `json:"unit"`
	DisplayValue float64    `json:"displayValue"`
	DisplayUnit  string     `json:"displayUnit"`
	Mnemonic     string     `json:"mnemonic,omitempty"`
	Version      int64      `json:"version"`
	Timestamp    time.Time  `json:"timestamp"`
	AlarmState   AlarmState `json:"alarmState"`
}
