package alarms

import (
	"errors"
	"fmt"
	"math"

	"github.com/pliefoog/helmdash/internal/sensors"
)

// Kind selects the comparison a threshold applies.
type Kind string

const (
	KindMin   Kind = "min"
	KindMax   Kind = "max"
	KindRange Kind = "range"
)

// Valid reports whether the kind is a known comparison.
func (k Kind) Valid() bool {
	switch k {
	case KindMin, KindMax, KindRange:
		return true
	}
	return false
}

// Threshold is one configured alarm rule bound to a data path. The
// hysteresis band widens the clear condition only; raising always
// compares against the bare limit.
type Threshold struct {
	ID                string   `yaml:"id" json:"id"`
	Name              string   `yaml:"name" json:"name"`
	DataPath          string   `yaml:"data_path" json:"dataPath"`
	Kind              Kind     `yaml:"kind" json:"kind"`
	Value             float64  `yaml:"value" json:"value"`
	MaxValue          float64  `yaml:"max_value" json:"maxValue"`
	Severity          Severity `yaml:"severity" json:"severity"`
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	Hysteresis        float64  `yaml:"hysteresis" json:"hysteresis"`
	HysteresisPercent bool     `yaml:"hysteresis_percent" json:"hysteresisPercent"`
}

// Validate rejects malformed thresholds at configuration time so the
// evaluation path can assume validated input.
func (t Threshold) Validate() error {
	if t.ID == "" {
		return errors.New("threshold: empty id")
	}
	if t.Name == "" {
		return fmt.Errorf("threshold %s: empty name", t.ID)
	}
	if _, err := sensors.ParseDataPath(t.DataPath); err != nil {
		return fmt.Errorf("threshold %s: %w", t.ID, err)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("threshold %s: unknown kind %q", t.ID, t.Kind)
	}
	if !t.Severity.Valid() {
		return fmt.Errorf("threshold %s: unknown severity %q", t.ID, t.Severity)
	}
	if t.Kind == KindRange && t.Value >= t.MaxValue {
		return fmt.Errorf("threshold %s: range value %g must be below max value %g", t.ID, t.Value, t.MaxValue)
	}
	if t.Hysteresis < 0 {
		return fmt.Errorf("threshold %s: negative hysteresis", t.ID)
	}
	if t.HysteresisPercent && t.Hysteresis >= 100 {
		return fmt.Errorf("threshold %s: hysteresis percent must be below 100", t.ID)
	}
	return nil
}

// violated reports whether a value breaks the threshold.
func (t Threshold) violated(value float64) bool {
	switch t.Kind {
	case KindMin:
		return value < t.Value
	case KindMax:
		return value > t.Value
	case KindRange:
		return value < t.Value || value > t.MaxValue
	}
	return false
}

// limitFor returns the limit a violating value crossed; it becomes the
// alarm's thresholdValue.
func (t Threshold) limitFor(value float64) float64 {
	if t.Kind == KindRange && value > t.MaxValue {
		return t.MaxValue
	}
	return t.Value
}

// bandFor resolves the hysteresis band around one limit, in the
// metric's own units.
func (t Threshold) bandFor(limit float64) float64 {
	if t.Hysteresis <= 0 {
		return 0
	}
	if t.HysteresisPercent {
		return math.Abs(limit) * t.Hysteresis / 100
	}
	return t.Hysteresis
}

// shouldClear reports whether an active alarm for this threshold may
// clear at the given value: the value must have recovered past the
// limit by the hysteresis band. With a zero band this degenerates to
// "no longer violated".
func (t Threshold) shouldClear(value float64) bool {
	switch t.Kind {
	case KindMin:
		return value >= t.Value+t.bandFor(t.Value)
	case KindMax:
		return value <= t.Value-t.bandFor(t.Value)
	case KindRange:
		return value >= t.Value+t.bandFor(t.Value) && value <= t.MaxValue-t.bandFor(t.MaxValue)
	}
	return false
}

// message renders the alarm text from the threshold name, the observed
// value and the crossed limit.
func (t Threshold) message(value float64) string {
	switch t.Kind {
	case KindMin:
		return fmt.Sprintf("%s: value %g below minimum %g", t.Name, value, t.Value)
	case KindMax:
		return fmt.Sprintf("%s: value %g above maximum %g", t.Name, value, t.Value)
	case KindRange:
		return fmt.Sprintf("%s: value %g outside range [%g, %g]", t.Name, value, t.Value, t.MaxValue)
	}
	return t.Name
}
