package sensors

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MetricDef describes one metric a sensor type reports. Unit is the SI
// unit the gateway delivers readings in; display conversion happens at
// read time, never on the ingest path.
type MetricDef struct {
	Key      string
	Mnemonic string
	Unit     string
}

// SensorDef describes a sensor type known to the dashboard.
type SensorDef struct {
	Type          string
	Label         string
	PrimaryMetric string
	MultiInstance bool
	Metrics       []MetricDef
}

// MetricOf returns the metric definition for a key.
func (s SensorDef) MetricOf(key string) (MetricDef, bool) {
	for _, m := range s.Metrics {
		if m.Key == key {
			return m, true
		}
	}
	return MetricDef{}, false
}

// catalog holds every sensor type the panel understands. Mnemonics
// follow the marine convention shown on instrument faces (RPM, ECT,
// SOC, DPT and so on).
var catalog = map[string]SensorDef{
	"engine": {
		Type:          "engine",
		Label:         "Engine",
		PrimaryMetric: "rpm",
		MultiInstance: true,
		Metrics: []MetricDef{
			{Key: "rpm", Mnemonic: "RPM", Unit: "rpm"},
			{Key: "coolantTemp", Mnemonic: "ECT", Unit: "K"},
			{Key: "oilPressure", Mnemonic: "EOP", Unit: "Pa"},
			{Key: "alternatorVoltage", Mnemonic: "ALT", Unit: "V"},
			{Key: "fuelRate", Mnemonic: "FLOW", Unit: "L/h"},
			{Key: "hours", Mnemonic: "EHR", Unit: "h"},
		},
	},
	"battery": {
		Type:          "battery",
		Label:         "Battery",
		PrimaryMetric: "voltage",
		MultiInstance: true,
		Metrics: []MetricDef{
			{Key: "voltage", Mnemonic: "VLT", Unit: "V"},
			{Key: "current", Mnemonic: "AMP", Unit: "A"},
			{Key: "temperature", Mnemonic: "TMP", Unit: "K"},
			{Key: "stateOfCharge", Mnemonic: "SOC", Unit: "ratio"},
		},
	},
	"tank": {
		Type:          "tank",
		Label:         "Tank",
		PrimaryMetric: "level",
		MultiInstance: true,
		Metrics: []MetricDef{
			{Key: "level", Mnemonic: "LVL", Unit: "ratio"},
			{Key: "capacity", Mnemonic: "CAP", Unit: "L"},
			{Key: "volume", Mnemonic: "VOL", Unit: "L"},
			{Key: "remaining", Mnemonic: "REM", Unit: "L"},
		},
	},
	"depth": {
		Type:          "depth",
		Label:         "Depth",
		PrimaryMetric: "depth",
		Metrics: []MetricDef{
			{Key: "depth", Mnemonic: "DPT", Unit: "m"},
			{Key: "offset", Mnemonic: "OFS", Unit: "m"},
		},
	},
	"wind": {
		Type:          "wind",
		Label:         "Wind",
		PrimaryMetric: "apparentSpeed",
		Metrics: []MetricDef{
			{Key: "apparentSpeed", Mnemonic: "AWS", Unit: "m/s"},
			{Key: "apparentDirection", Mnemonic: "AWA", Unit: "rad"},
			{Key: "trueSpeed", Mnemonic: "TWS", Unit: "m/s"},
			{Key: "trueDirection", Mnemonic: "TWD", Unit: "rad"},
		},
	},
	"speed": {
		Type:          "speed",
		Label:         "Speed",
		PrimaryMetric: "throughWater",
		Metrics: []MetricDef{
			{Key: "throughWater", Mnemonic: "STW", Unit: "m/s"},
			{Key: "overGround", Mnemonic: "SOG", Unit: "m/s"},
		},
	},
	"temperature": {
		Type:          "temperature",
		Label:         "Temperature",
		PrimaryMetric: "value",
		MultiInstance: true,
		Metrics: []MetricDef{
			{Key: "value", Mnemonic: "VAL", Unit: "K"},
		},
	},
	"compass": {
		Type:          "compass",
		Label:         "Compass",
		PrimaryMetric: "heading",
		Metrics: []MetricDef{
			{Key: "heading", Mnemonic: "HDG", Unit: "rad"},
			{Key: "rateOfTurn", Mnemonic: "ROT", Unit: "rad/s"},
		},
	},
	"gps": {
		Type:          "gps",
		Label:         "GPS",
		PrimaryMetric: "speedOverGround",
		Metrics: []MetricDef{
			{Key: "latitude", Mnemonic: "LAT", Unit: "deg"},
			{Key: "longitude", Mnemonic: "LON", Unit: "deg"},
			{Key: "speedOverGround", Mnemonic: "SOG", Unit: "m/s"},
			{Key: "courseOverGround", Mnemonic: "COG", Unit: "rad"},
			{Key: "numberOfSatellites", Mnemonic: "SATS", Unit: ""},
		},
	},
	"navigation": {
		Type:          "navigation",
		Label:         "Navigation",
		PrimaryMetric: "crossTrackError",
		Metrics: []MetricDef{
			{Key: "crossTrackError", Mnemonic: "XTE", Unit: "m"},
			{Key: "bearingToWaypoint", Mnemonic: "BTW", Unit: "rad"},
			{Key: "distanceToWaypoint", Mnemonic: "DTW", Unit: "m"},
		},
	},
	"weather": {
		Type:          "weather",
		Label:         "Weather",
		PrimaryMetric: "barometricPressure",
		Metrics: []MetricDef{
			{Key: "airTemperature", Mnemonic: "ATMP", Unit: "K"},
			{Key: "barometricPressure", Mnemonic: "BARO", Unit: "Pa"},
			{Key: "humidity", Mnemonic: "HUM", Unit: "ratio"},
			{Key: "waterTemperature", Mnemonic: "WTMP", Unit: "K"},
		},
	},
}

// Lookup returns the definition for a sensor type.
func Lookup(sensorType string) (SensorDef, bool) {
	def, ok := catalog[sensorType]
	return def, ok
}

// Types returns all known sensor types in sorted order.
func Types() []string {
	out := make([]string, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DataPath identifies one metric of one sensor instance. The textual
// form is sensorType[.metricKey][#instance]; the metric key defaults
// to the sensor's primary metric and the instance defaults to 0.
type DataPath struct {
	SensorType string
	MetricKey  string
	Instance   int
}

// ParseDataPath parses and normalizes a data path against the catalog.
// A bare sensor type like "depth" resolves to its primary metric.
func ParseDataPath(raw string) (DataPath, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DataPath{}, fmt.Errorf("data path is empty")
	}

	instance := 0
	if i := strings.Index(s, "#"); i != -1 {
		n, err := strconv.Atoi(s[i+1:])
		if err != nil || n < 0 {
			return DataPath{}, fmt.Errorf("data path %q: invalid instance", raw)
		}
		instance = n
		s = s[:i]
	}

	sensorType := s
	metricKey := ""
	if i := strings.Index(s, "."); i != -1 {
		sensorType = s[:i]
		metricKey = s[i+1:]
	}

	def, ok := catalog[sensorType]
	if !ok {
		return DataPath{}, fmt.Errorf("data path %q: unknown sensor type %q", raw, sensorType)
	}
	if metricKey == "" {
		metricKey = def.PrimaryMetric
	} else if _, ok := def.MetricOf(metricKey); !ok {
		return DataPath{}, fmt.Errorf("data path %q: sensor %s has no metric %q", raw, sensorType, metricKey)
	}

	return DataPath{SensorType: sensorType, MetricKey: metricKey, Instance: instance}, nil
}

// String renders the canonical textual form. Instance 0 is omitted.
func (p DataPath) String() string {
	s := p.SensorType + "." + p.MetricKey
	if p.Instance != 0 {
		s += "#" + strconv.Itoa(p.Instance)
	}
	return s
}
