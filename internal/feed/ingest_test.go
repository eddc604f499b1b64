package feed

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeEnvelopeReading(t *testing.T) {
	data := []byte(`{
		"type": "reading",
		"timestamp": "2024-06-01T12:00:00Z",
		"reading": {
			"sensorType": "engine",
			"instance": 1,
			"metricKey": "coolantTemp",
			"value": 371.15,
			"unit": "K"
		}
	}`)

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeReading {
		t.Errorf("type = %q", env.Type)
	}
	r := env.Reading
	if r == nil {
		t.Fatal("reading payload missing")
	}
	if r.SensorType != "engine" || r.Instance != 1 || r.MetricKey != "coolantTemp" {
		t.Errorf("reading = %+v", r)
	}
	if r.Value != 371.15 || r.Unit != "K" {
		t.Errorf("value = %v %s", r.Value, r.Unit)
	}
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want envelope time %v", r.Timestamp, want)
	}
}

func TestDecodeEnvelopeReadingKeepsOwnTimestamp(t *testing.T) {
	data := []byte(`{
		"type": "reading",
		"timestamp": "2024-06-01T12:00:00Z",
		"reading": {
			"sensorType": "depth",
			"metricKey": "depth",
			"value": 4.2,
			"unit": "m",
			"timestamp": "2024-06-01T11:59:58Z"
		}
	}`)

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := time.Date(2024, 6, 1, 11, 59, 58, 0, time.UTC)
	if !env.Reading.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want reading's own %v", env.Reading.Timestamp, want)
	}
}

func TestDecodeEnvelopeDiscovery(t *testing.T) {
	data := []byte(`{
		"type": "discovery",
		"scan": {
			"engines": [{"id": "1", "title": "Port Engine"}],
			"batteries": [{"id": "house", "title": "House Bank"}]
		}
	}`)

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Scan == nil {
		t.Fatal("scan payload missing")
	}
	present := env.Scan.Flatten()
	if _, ok := present["engine-1"]; !ok {
		t.Error("engine-1 missing from flattened scan")
	}
	if _, ok := present["battery-house"]; !ok {
		t.Error("battery-house missing from flattened scan")
	}
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"not json", `{nope`, "decode envelope"},
		{"unknown type", `{"type":"position"}`, "unknown envelope type"},
		{"reading without payload", `{"type":"reading"}`, "without payload"},
		{"discovery without scan", `{"type":"discovery"}`, "without scan"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tc.data))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q", err, tc.want)
			}
		})
	}
}
