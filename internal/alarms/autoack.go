package alarms

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// autoAckBy is recorded as the acknowledging party on timer-driven
// acknowledgements.
const autoAckBy = "auto"

// AutoAcknowledger acknowledges raised alarms after the configured
// delay, standing in for a crew that cannot reach the panel. It
// implements Notifier so the engine drives it like any other sink.
type AutoAcknowledger struct {
	log    zerolog.Logger
	store  *Store
	onAck  func(Alarm)
	mu     sync.Mutex
	timers map[string]context.CancelFunc
}

// NewAutoAcknowledger creates an auto-acknowledger over a store.
func NewAutoAcknowledger(store *Store, log zerolog.Logger) *AutoAcknowledger {
	return &AutoAcknowledger{
		log:    log.With().Str("component", "auto-ack").Logger(),
		store:  store,
		timers: make(map[string]context.CancelFunc),
	}
}

// SetOnAcknowledged wires a callback fired after a timer-driven
// acknowledgement lands, so downstream event sinks hear about it. Must
// be set before the engine starts driving this notifier.
func (a *AutoAcknowledger) SetOnAcknowledged(fn func(Alarm)) {
	a.onAck = fn
}

// AlarmRaised starts an acknowledgement timer when settings ask for it.
func (a *AutoAcknowledger) AlarmRaised(alarm Alarm) {
	settings := a.store.Settings()
	if !settings.AutoAcknowledge || settings.AutoAckDelay <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Cancel any existing timer for this alarm
	if cancel, ok := a.timers[alarm.ID]; ok {
		cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.timers[alarm.ID] = cancel
	delay := settings.AutoAckDelay

	a.log.Debug().
		Str("alarm_id", alarm.ID).
		Dur("delay", delay).
		Msg("Auto-acknowledge timer started")

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			if acked, ok := a.store.Acknowledge(alarm.ID, autoAckBy, time.Now()); ok {
				a.log.Info().
					Str("alarm_id", alarm.ID).
					Msg("Alarm auto-acknowledged")
				if a.onAck != nil {
					a.onAck(acked)
				}
			}
			a.mu.Lock()
			delete(a.timers, alarm.ID)
			a.mu.Unlock()
		}
	}()
}

// AlarmCleared cancels the pending timer for a cleared alarm.
func (a *AutoAcknowledger) AlarmCleared(alarm Alarm) {
	a.cancel(alarm.ID)
}

// AlarmAcknowledged cancels the pending timer once someone beat it.
func (a *AutoAcknowledger) AlarmAcknowledged(alarm Alarm) {
	if alarm.AcknowledgedBy == autoAckBy {
		return
	}
	a.cancel(alarm.ID)
}

func (a *AutoAcknowledger) cancel(alarmID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cancel, ok := a.timers[alarmID]; ok {
		cancel()
		delete(a.timers, alarmID)
		a.log.Debug().Str("alarm_id", alarmID).Msg("Auto-acknowledge timer cancelled")
	}
}

// Stop cancels all pending timers.
func (a *AutoAcknowledger) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, cancel := range a.timers {
		cancel()
		delete(a.timers, id)
	}
}
