package alarms

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"
)

// Severity classifies thresholds and the alarms they raise.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is a known level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// rank orders severities for overlay decisions.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Alarm records one threshold violation episode. ObservedValue is the
// value at the first trigger and is never rewritten while the episode
// stays active.
type Alarm struct {
	ID             string     `json:"id"`
	Source         string     `json:"source"`
	Name           string     `json:"name"`
	Message        string     `json:"message"`
	Severity       Severity   `json:"severity"`
	DataPath       string     `json:"dataPath"`
	ObservedValue  float64    `json:"observedValue"`
	ThresholdValue float64    `json:"thresholdValue"`
	RaisedAt       time.Time  `json:"raisedAt"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	ClearedAt      *time.Time `json:"clearedAt,omitempty"`
}

// newAlarmID derives a short stable id for one violation episode.
func newAlarmID(source string, raisedAt time.Time) string {
	sum := sha1.Sum([]byte(source + "|" + strconv.FormatInt(raisedAt.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])[:8]
}
