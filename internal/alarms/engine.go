package alarms

import (
	"time"

	"github.com/pliefoog/helmdash/internal/observability/metrics"
	"github.com/rs/zerolog"
)

// hysteresisClearsWithDeadband names the resolved semantics of the
// threshold hysteresis field: an active alarm clears only after the
// value has recovered past the limit by the configured band, while
// raising always compares against the bare limit. Flipping this to
// false makes hysteresis a stored no-op.
const hysteresisClearsWithDeadband = true

// Snapshot is a consistent capture of metric values keyed by the raw
// data path strings of the thresholds under evaluation. Absent paths
// mean "no verdict".
type Snapshot map[string]float64

// Verdicts lists the lifecycle transitions one evaluation tick produced.
type Verdicts struct {
	Raised  []Alarm
	Cleared []Alarm
}

// Notifier receives alarm lifecycle events. Implementations must not
// block: dispatch is fire-and-forget from the engine's point of view.
type Notifier interface {
	AlarmRaised(Alarm)
	AlarmCleared(Alarm)
	AlarmAcknowledged(Alarm)
}

// Notifiers fans events out to several notifiers.
type Notifiers []Notifier

// AlarmRaised implements Notifier.
func (n Notifiers) AlarmRaised(a Alarm) {
	for _, sink := range n {
		if sink != nil {
			sink.AlarmRaised(a)
		}
	}
}

// AlarmCleared implements Notifier.
func (n Notifiers) AlarmCleared(a Alarm) {
	for _, sink := range n {
		if sink != nil {
			sink.AlarmCleared(a)
		}
	}
}

// AlarmAcknowledged implements Notifier.
func (n Notifiers) AlarmAcknowledged(a Alarm) {
	for _, sink := range n {
		if sink != nil {
			sink.AlarmAcknowledged(a)
		}
	}
}

// Engine turns threshold violations into alarm lifecycle transitions
// against the store. Evaluation is driven by the caller's tick; the
// engine holds no timers of its own.
type Engine struct {
	logger   zerolog.Logger
	store    *Store
	notifier Notifier
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNotifier wires the lifecycle event sink.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// NewEngine creates an evaluation engine over a lifecycle store.
func NewEngine(store *Store, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		logger: logger.With().Str("component", "threshold-engine").Logger(),
		store:  store,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs one tick over every enabled threshold against a single
// consistent snapshot. Raising is suppressed while the severity is
// muted; clearing never is, so alarms cannot get stuck active behind a
// mute window. Thresholds whose metric is absent produce no verdict.
// Active alarms whose threshold is gone or disabled are retracted.
func (e *Engine) Evaluate(thresholds []Threshold, snap Snapshot, now time.Time) Verdicts {
	var verdicts Verdicts
	settings := e.store.Settings()
	evaluated := make(map[string]struct{}, len(thresholds))

	for _, t := range thresholds {
		if !t.Enabled {
			continue
		}
		evaluated[t.ID] = struct{}{}

		value, ok := snap[t.DataPath]
		if !ok {
			// Metric not yet observed: no verdict either way.
			continue
		}

		_, hasActive := e.store.ActiveBySource(t.ID)

		if hasActive {
			clears := t.shouldClear(value)
			if !hysteresisClearsWithDeadband {
				clears = !t.violated(value)
			}
			if clears {
				if cleared, ok := e.store.ClearBySource(t.ID, now); ok {
					e.logger.Info().
						Str("alarm_id", cleared.ID).
						Str("source", t.ID).
						Float64("value", value).
						Msg("Alarm cleared")
					metrics.AlarmEvent("cleared", string(cleared.Severity))
					if e.notifier != nil {
						e.notifier.AlarmCleared(cleared)
					}
					verdicts.Cleared = append(verdicts.Cleared, cleared)
				}
			}
			// Still violated: idempotent, and the original trigger
			// value stays on the alarm.
			continue
		}

		if !t.violated(value) {
			continue
		}
		if settings.MutedFor(t.Severity, now) {
			e.logger.Debug().
				Str("source", t.ID).
				Str("severity", string(t.Severity)).
				Msg("Raise suppressed by mute")
			continue
		}

		alarm := Alarm{
			ID:             newAlarmID(t.ID, now),
			Source:         t.ID,
			Name:           t.Name,
			Message:        t.message(value),
			Severity:       t.Severity,
			DataPath:       t.DataPath,
			ObservedValue:  value,
			ThresholdValue: t.limitFor(value),
			RaisedAt:       now,
		}
		if e.store.Raise(alarm) {
			e.logger.Warn().
				Str("alarm_id", alarm.ID).
				Str("source", t.ID).
				Str("severity", string(t.Severity)).
				Float64("value", value).
				Float64("limit", alarm.ThresholdValue).
				Msg("Alarm raised")
			metrics.AlarmEvent("raised", string(alarm.Severity))
			if e.notifier != nil {
				e.notifier.AlarmRaised(alarm)
			}
			verdicts.Raised = append(verdicts.Raised, alarm)
		}
	}

	// Retract alarms whose threshold was removed or disabled; nothing
	// monitors their condition anymore.
	for _, source := range e.store.ActiveSources() {
		if _, ok := evaluated[source]; ok {
			continue
		}
		if cleared, ok := e.store.ClearBySource(source, now); ok {
			e.logger.Info().
				Str("alarm_id", cleared.ID).
				Str("source", source).
				Msg("Alarm retracted, threshold gone")
			metrics.AlarmEvent("cleared", string(cleared.Severity))
			if e.notifier != nil {
				e.notifier.AlarmCleared(cleared)
			}
			verdicts.Cleared = append(verdicts.Cleared, cleared)
		}
	}

	return verdicts
}
