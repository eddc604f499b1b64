package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/pliefoog/helmdash/internal/sensors"
	"github.com/rs/zerolog"
)

const defaultFreshFor = 10 * time.Second

// Clock abstracts time for staleness checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AlarmOverlay reports the severity of an active alarm bound to a
// metric, if any. Wired at composition time; nil means no overlay.
type AlarmOverlay func(sensorType string, instance int, metricKey string) (severity string, ok bool)

type metricID struct {
	sensorType string
	instance   int
	metricKey  string
}

type entry struct {
	value     float64
	unit      string
	version   int64
	updatedAt time.Time
}

// Store holds the latest value and a monotonically increasing version
// counter per (sensor type, instance, metric key). The version is the
// sole change signal consumers poll; reads are side-effect free and
// metrics are never destroyed, only marked stale.
type Store struct {
	logger   zerolog.Logger
	clock    Clock
	freshFor time.Duration
	prefs    sensors.UnitPreferences

	mu      sync.RWMutex
	entries map[metricID]*entry
	overlay AlarmOverlay
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(clock Clock) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFreshFor sets the window after which a silent metric reads stale.
func WithFreshFor(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.freshFor = d
		}
	}
}

// WithUnitPreferences sets the display units used by enriched reads.
func WithUnitPreferences(prefs sensors.UnitPreferences) StoreOption {
	return func(s *Store) {
		s.prefs = prefs
	}
}

// NewStore creates an empty metric store.
func NewStore(logger zerolog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		logger:   logger.With().Str("component", "metric-store").Logger(),
		clock:    systemClock{},
		freshFor: defaultFreshFor,
		entries:  make(map[metricID]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAlarmOverlay wires the active-alarm lookup used by enriched reads.
func (s *Store) SetAlarmOverlay(fn AlarmOverlay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay = fn
}

// Update applies one reading. A new or changed (value, unit) pair bumps
// the version by exactly 1; an identical pair only refreshes the
// timestamp so version-equality subscribers are not woken. Returns
// whether the version was bumped. Readings with an empty sensor type
// or metric key are discarded.
func (s *Store) Update(r Reading) bool {
	if r.SensorType == "" || r.MetricKey == "" {
		s.logger.Debug().
			Str("sensor", r.SensorType).
			Str("metric", r.MetricKey).
			Msg("Discarding malformed reading")
		return false
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.clock.Now()
	}

	id := metricID{r.SensorType, r.Instance, r.MetricKey}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		s.entries[id] = &entry{
			value:     r.Value,
			unit:      r.Unit,
			version:   0,
			updatedAt: r.Timestamp,
		}
		s.logger.Debug().
			Str("sensor", r.SensorType).
			Int("instance", r.Instance).
			Str("metric", r.MetricKey).
			Float64("value", r.Value).
			Str("unit", r.Unit).
			Msg("Metric created")
		return true
	}

	if e.value == r.Value && e.unit == r.Unit {
		e.updatedAt = r.Timestamp
		return false
	}

	e.value = r.Value
	e.unit = r.Unit
	e.version++
	e.updatedAt = r.Timestamp
	return true
}

// VersionOf returns the version counter for a metric, or -1 if the
// metric has never been observed. This is the cheap change-detection
// path: no enrichment runs here.
func (s *Store) VersionOf(sensorType string, instance int, metricKey string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[metricID{sensorType, instance, metricKey}]
	if !ok {
		return -1
	}
	return e.version
}

// CombinedVersionOf returns the sum of the versions of several metrics
// of one sensor instance. Any single metric changing changes the sum;
// false positives are acceptable, false negatives are not.
func (s *Store) CombinedVersionOf(sensorType string, instance int, metricKeys ...string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, mk := range metricKeys {
		if e, ok := s.entries[metricID{sensorType, instance, mk}]; ok {
			sum += e.version
		} else {
			sum--
		}
	}
	return sum
}

// Read returns the enriched view of a metric. Display conversion, the
// staleness check and the alarm overlay run here and only here.
func (s *Store) Read(sensorType string, instance int, metricKey string) (Metric, bool) {
	id := metricID{sensorType, instance, metricKey}

	s.mu.RLock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.RUnlock()
		return Metric{}, false
	}
	snapshot := *e
	overlay := s.overlay
	s.mu.RUnlock()

	return s.enrich(id, snapshot, overlay), true
}

func (s *Store) enrich(id metricID, e entry, overlay AlarmOverlay) Metric {
	m := Metric{
		SensorType: id.sensorType,
		Instance:   id.instance,
		MetricKey:  id.metricKey,
		RawValue:   e.value,
		Unit:       e.unit,
		Version:    e.version,
		Timestamp:  e.updatedAt,
		AlarmState: AlarmStateOk,
	}

	m.DisplayValue, m.DisplayUnit = sensors.Display(e.value, e.unit, s.prefs)
	if def, ok := sensors.Lookup(id.sensorType); ok {
		if md, ok := def.MetricOf(id.metricKey); ok {
			m.Mnemonic = md.Mnemonic
		}
	}

	// A silent sensor cannot be trusted, so staleness wins over any
	// alarm overlay.
	if s.clock.Now().Sub(e.updatedAt) > s.freshFor {
		m.AlarmState = AlarmStateStale
		return m
	}
	if overlay != nil {
		if severity, ok := overlay(id.sensorType, id.instance, id.metricKey); ok {
			switch severity {
			case "critical":
				m.AlarmState = AlarmStateCritical
			case "warning":
				m.AlarmState = AlarmStateWarning
			}
		}
	}
	return m
}

// CaptureValues resolves a set of data paths against the store under a
// single lock, so one evaluation tick sees one consistent snapshot.
// Unknown paths and unobserved metrics are simply absent from the
// result.
func (s *Store) CaptureValues(paths []string) map[string]float64 {
	out := make(map[string]float64, len(paths))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, raw := range paths {
		p, err := sensors.ParseDataPath(raw)
		if err != nil {
			continue
		}
		if e, ok := s.entries[metricID{p.SensorType, p.Instance, p.MetricKey}]; ok {
			out[raw] = e.value
		}
	}
	return out
}

// List returns the enriched view of every stored metric, sorted by
// sensor type, instance and metric key. Intended for the API surface,
// not the evaluation path.
func (s *Store) List() []Metric {
	s.mu.RLock()
	ids := make([]metricID, 0, len(s.entries))
	snapshots := make(map[metricID]entry, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		snapshots[id] = *e
	}
	overlay := s.overlay
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		if ids[i].sensorType != ids[j].sensorType {
			return ids[i].sensorType < ids[j].sensorType
		}
		if ids[i].instance != ids[j].instance {
			return ids[i].instance < ids[j].instance
		}
		return ids[i].metricKey < ids[j].metricKey
	})

	out := make([]Metric, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.enrich(id, snapshots[id], overlay))
	}
	return out
}

// Count returns the number of stored metrics.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
