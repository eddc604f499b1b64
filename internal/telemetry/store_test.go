package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/pliefoog/helmdash/internal/sensors"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(opts ...StoreOption) *Store {
	return NewStore(zerolog.Nop(), opts...)
}

func reading(value float64, at time.Time) Reading {
	return Reading{
		SensorType: "depth",
		MetricKey:  "depth",
		Value:      value,
		Unit:       "m",
		Timestamp:  at,
	}
}

func TestVersionStartsAtZero(t *testing.T) {
	s := newTestStore()

	if v := s.VersionOf("depth", 0, "depth"); v != -1 {
		t.Fatalf("absent metric version = %d, want -1", v)
	}

	s.Update(reading(3.2, time.Now()))
	if v := s.VersionOf("depth", 0, "depth"); v != 0 {
		t.Fatalf("first update version = %d, want 0", v)
	}
}

func TestVersionMonotonicity(t *testing.T) {
	s := newTestStore()
	now := time.Now()

	s.Update(reading(3.2, now))
	before := s.VersionOf("depth", 0, "depth")

	// Changed value bumps by exactly one.
	s.Update(reading(3.3, now.Add(time.Second)))
	if after := s.VersionOf("depth", 0, "depth"); after != before+1 {
		t.Fatalf("changed value: version %d -> %d, want +1", before, after)
	}

	// Identical value and unit refreshes the timestamp but not the version.
	before = s.VersionOf("depth", 0, "depth")
	later := now.Add(5 * time.Second)
	if bumped := s.Update(reading(3.3, later)); bumped {
		t.Fatal("identical value reported as bumped")
	}
	if after := s.VersionOf("depth", 0, "depth"); after != before {
		t.Fatalf("identical value: version %d -> %d, want unchanged", before, after)
	}
	m, ok := s.Read("depth", 0, "depth")
	if !ok {
		t.Fatal("metric missing after update")
	}
	if !m.Timestamp.Equal(later) {
		t.Fatalf("timestamp not refreshed: got %v, want %v", m.Timestamp, later)
	}

	// A unit change alone is a real change.
	before = s.VersionOf("depth", 0, "depth")
	s.Update(Reading{SensorType: "depth", MetricKey: "depth", Value: 3.3, Unit: "ft", Timestamp: later})
	if after := s.VersionOf("depth", 0, "depth"); after != before+1 {
		t.Fatalf("unit change: version %d -> %d, want +1", before, after)
	}
}

func TestMalformedReadingDiscarded(t *testing.T) {
	s := newTestStore()

	if bumped := s.Update(Reading{SensorType: "", MetricKey: "depth", Value: 1}); bumped {
		t.Fatal("empty sensor type accepted")
	}
	if bumped := s.Update(Reading{SensorType: "depth", MetricKey: "", Value: 1}); bumped {
		t.Fatal("empty metric key accepted")
	}
	if s.Count() != 0 {
		t.Fatalf("store not empty: %d entries", s.Count())
	}
}

func TestCombinedVersion(t *testing.T) {
	s := newTestStore()
	now := time.Now()

	s.Update(Reading{SensorType: "engine", Instance: 1, MetricKey: "rpm", Value: 1800, Unit: "rpm", Timestamp: now})
	s.Update(Reading{SensorType: "engine", Instance: 1, MetricKey: "coolantTemp", Value: 360, Unit: "K", Timestamp: now})

	// rpm=0, coolantTemp=0, oilPressure absent=-1.
	sum := s.CombinedVersionOf("engine", 1, "rpm", "coolantTemp", "oilPressure")
	if sum != -1 {
		t.Fatalf("combined = %d, want -1", sum)
	}

	s.Update(Reading{SensorType: "engine", Instance: 1, MetricKey: "rpm", Value: 1850, Unit: "rpm", Timestamp: now})
	if got := s.CombinedVersionOf("engine", 1, "rpm", "coolantTemp", "oilPressure"); got != sum+1 {
		t.Fatalf("combined after one change = %d, want %d", got, sum+1)
	}
}

func TestReadEnrichment(t *testing.T) {
	s := newTestStore(WithUnitPreferences(sensors.UnitPreferences{Depth: "feet"}))
	s.Update(reading(3.048, time.Now()))

	m, ok := s.Read("depth", 0, "depth")
	if !ok {
		t.Fatal("metric missing")
	}
	if m.RawValue != 3.048 || m.Unit != "m" {
		t.Fatalf("raw side wrong: %+v", m)
	}
	if m.DisplayUnit != "ft" || m.DisplayValue < 9.99 || m.DisplayValue > 10.01 {
		t.Fatalf("display side wrong: %v %s", m.DisplayValue, m.DisplayUnit)
	}
	if m.Mnemonic != "DPT" {
		t.Fatalf("mnemonic = %q, want DPT", m.Mnemonic)
	}
	if m.AlarmState != AlarmStateOk {
		t.Fatalf("alarm state = %s, want ok", m.AlarmState)
	}
}

func TestStaleness(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestStore(WithClock(clock), WithFreshFor(10*time.Second))

	s.Update(reading(3.2, clock.Now()))
	if m, _ := s.Read("depth", 0, "depth"); m.AlarmState != AlarmStateOk {
		t.Fatalf("fresh metric state = %s", m.AlarmState)
	}

	clock.Add(11 * time.Second)
	if m, _ := s.Read("depth", 0, "depth"); m.AlarmState != AlarmStateStale {
		t.Fatalf("silent metric state = %s, want stale", m.AlarmState)
	}

	// Staleness wins over the alarm overlay.
	s.SetAlarmOverlay(func(string, int, string) (string, bool) { return "critical", true })
	if m, _ := s.Read("depth", 0, "depth"); m.AlarmState != AlarmStateStale {
		t.Fatalf("stale metric with overlay = %s, want stale", m.AlarmState)
	}

	// A fresh reading picks the overlay back up.
	s.Update(reading(1.0, clock.Now()))
	if m, _ := s.Read("depth", 0, "depth"); m.AlarmState != AlarmStateCritical {
		t.Fatalf("fresh metric with overlay = %s, want critical", m.AlarmState)
	}
}

func TestCaptureValues(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Update(reading(3.2, now))
	s.Update(Reading{SensorType: "engine", Instance: 1, MetricKey: "coolantTemp", Value: 365, Unit: "K", Timestamp: now})

	snap := s.CaptureValues([]string{"depth", "engine.coolantTemp#1", "engine.rpm", "bogus.path"})
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2: %v", len(snap), snap)
	}
	if snap["depth"] != 3.2 {
		t.Fatalf("depth = %v", snap["depth"])
	}
	if snap["engine.coolantTemp#1"] != 365 {
		t.Fatalf("coolantTemp = %v", snap["engine.coolantTemp#1"])
	}
}

func TestListSorted(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Update(Reading{SensorType: "engine", Instance: 1, MetricKey: "rpm", Value: 1800, Unit: "rpm", Timestamp: now})
	s.Update(Reading{SensorType: "battery", Instance: 0, MetricKey: "voltage", Value: 12.6, Unit: "V", Timestamp: now})
	s.Update(Reading{SensorType: "engine", Instance: 0, MetricKey: "rpm", Value: 1700, Unit: "rpm", Timestamp: now})

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("list size = %d", len(list))
	}
	if list[0].SensorType != "battery" || list[1].Instance != 0 || list[2].Instance != 1 {
		t.Fatalf("unexpected order: %+v", list)
	}
}
