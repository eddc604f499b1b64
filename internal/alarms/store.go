package alarms

import (
	"sort"
	"sync"
	"time"

	"github.com/pliefoog/helmdash/internal/observability/metrics"
	"github.com/pliefoog/helmdash/internal/sensors"
	"github.com/rs/zerolog"
)

const defaultHistoryRetention = 50

// Store is the alarm lifecycle store: the active set keyed by source
// threshold, a bounded FIFO history of cleared episodes, and the user
// alarm settings. It is the one piece of state mutated by two actors
// (the engine raising/clearing, the user acknowledging), so every
// mutation runs under the lock and acknowledgement is a compare-and-set
// against the current active set.
type Store struct {
	logger    zerolog.Logger
	retention int

	mu       sync.RWMutex
	active   map[string]*Alarm
	history  []Alarm
	settings Settings
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHistoryRetention caps how many cleared episodes are kept.
func WithHistoryRetention(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithSettings seeds the initial alarm settings.
func WithSettings(settings Settings) StoreOption {
	return func(s *Store) {
		s.settings = settings
	}
}

// NewStore creates an empty alarm lifecycle store.
func NewStore(logger zerolog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		logger:    logger.With().Str("component", "alarm-store").Logger(),
		retention: defaultHistoryRetention,
		active:    make(map[string]*Alarm),
		settings:  DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Raise inserts an alarm unless one is already active for the same
// source. Returns whether the alarm was inserted; raising is
// idempotent while the condition persists.
func (s *Store) Raise(alarm Alarm) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[alarm.Source]; exists {
		return false
	}
	a := alarm
	s.active[alarm.Source] = &a
	return true
}

// ClearBySource retracts the active alarm for a threshold: it leaves
// the active set and joins the bounded history. Clearing an unknown
// source is a no-op.
func (s *Store) ClearBySource(source string, at time.Time) (Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.active[source]
	if !ok {
		return Alarm{}, false
	}
	delete(s.active, source)

	cleared := *a
	t := at
	cleared.ClearedAt = &t
	s.appendHistoryLocked(cleared)
	return cleared, true
}

func (s *Store) appendHistoryLocked(alarm Alarm) {
	s.history = append(s.history, alarm)
	if len(s.history) > s.retention {
		// FIFO eviction: drop the oldest entries.
		s.history = s.history[len(s.history)-s.retention:]
	}
}

// Acknowledge marks an active alarm acknowledged. The id names one
// episode, not a threshold, so a concurrent clear makes this a clean
// no-op instead of corrupting a newer episode. Returns false for
// unknown, cleared or already-acknowledged ids.
func (s *Store) Acknowledge(id, by string, at time.Time) (Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.active {
		if a.ID != id {
			continue
		}
		if a.Acknowledged {
			return Alarm{}, false
		}
		a.Acknowledged = true
		t := at
		a.AcknowledgedAt = &t
		a.AcknowledgedBy = by
		s.logger.Info().
			Str("alarm_id", id).
			Str("source", a.Source).
			Str("by", by).
			Msg("Alarm acknowledged")
		metrics.AlarmEvent("acknowledged", string(a.Severity))
		return *a, true
	}
	return Alarm{}, false
}

// ActiveBySource returns the active alarm for a threshold, if any.
func (s *Store) ActiveBySource(source string) (Alarm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.active[source]
	if !ok {
		return Alarm{}, false
	}
	return *a, true
}

// Active returns all active alarms ordered by raise time.
func (s *Store) Active() []Alarm {
	s.mu.RLock()
	out := make([]Alarm, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, *a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].Source < out[j].Source
		}
		return out[i].RaisedAt.Before(out[j].RaisedAt)
	})
	return out
}

// ActiveSources returns the source threshold ids with an active alarm.
func (s *Store) ActiveSources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.active))
	for source := range s.active {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// History returns cleared episodes, newest first.
func (s *Store) History() []Alarm {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alarm, len(s.history))
	for i, a := range s.history {
		out[len(out)-1-i] = a
	}
	return out
}

// Settings returns a copy of the current alarm settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the alarm settings.
func (s *Store) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// MuteFor opens a global mute window and returns its end. Raising is
// suppressed until then; clearing still runs.
func (s *Store) MuteFor(d time.Duration, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.MuteUntil = now.Add(d)
	s.logger.Info().
		Time("mute_until", s.settings.MuteUntil).
		Msg("Alarms muted")
	return s.settings.MuteUntil
}

// OverlayFor reports the severity of the highest-severity active alarm
// bound to a metric. Used by the metric store's enriched reads.
func (s *Store) OverlayFor(sensorType string, instance int, metricKey string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := Severity("")
	for _, a := range s.active {
		p, err := sensors.ParseDataPath(a.DataPath)
		if err != nil {
			continue
		}
		if p.SensorType != sensorType || p.Instance != instance || p.MetricKey != metricKey {
			continue
		}
		if a.Severity.rank() > best.rank() {
			best = a.Severity
		}
	}
	if best == "" {
		return "", false
	}
	return string(best), true
}
