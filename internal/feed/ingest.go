package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pliefoog/helmdash/internal/discovery"
	"github.com/pliefoog/helmdash/internal/telemetry"
)

// Envelope type markers sent by the vessel gateway.
const (
	TypeReading   = "reading"
	TypeDiscovery = "discovery"
)

// Envelope is one JSON frame from the gateway. Type selects which
// payload field is set: a decoded SI reading or a discovery scan.
type Envelope struct {
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp,omitempty"`
	Reading   *telemetry.Reading `json:"reading,omitempty"`
	Scan      *discovery.Scan    `json:"scan,omitempty"`
}

// DecodeEnvelope parses and validates one gateway frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeReading:
		if env.Reading == nil {
			return Envelope{}, fmt.Errorf("reading envelope without payload")
		}
		// The gateway stamps the envelope. Carry it onto an unstamped
		// reading so staleness reflects bus time, not apply time.
		if env.Reading.Timestamp.IsZero() && !env.Timestamp.IsZero() {
			env.Reading.Timestamp = env.Timestamp
		}
	case TypeDiscovery:
		if env.Scan == nil {
			return Envelope{}, fmt.Errorf("discovery envelope without scan")
		}
	default:
		return Envelope{}, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return env, nil
}
