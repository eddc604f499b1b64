package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pliefoog/helmdash/internal/alarms"
	"github.com/pliefoog/helmdash/internal/observability/metrics"
	"github.com/pliefoog/helmdash/internal/widgets"
)

// Event types published by the safety core.
const (
	EventAlarmRaised       = "alarm_raised"
	EventAlarmCleared      = "alarm_cleared"
	EventAlarmAcknowledged = "alarm_acknowledged"
	EventWidgetCreated     = "widget_created"
	EventWidgetRemoved     = "widget_removed"
)

// Event is one lifecycle event leaving the core. Exactly one of Alarm
// or Widget is set, matching the Type.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Alarm     *alarms.Alarm   `json:"alarm,omitempty"`
	Widget    *widgets.Widget `json:"widget,omitempty"`
}

// Sink delivers one event to one destination.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 5 * time.Second
)

// Dispatcher decouples the evaluation and reconcile loops from
// notification I/O: events are queued and delivered to the sinks from
// a single worker goroutine. When the queue is full the event is
// dropped and counted; evaluation never waits on a slow channel.
//
// Dispatcher implements alarms.Notifier and widgets.LayoutSink so the
// engine and the widget manager can feed it directly.
type Dispatcher struct {
	log         zerolog.Logger
	sinks       []Sink
	sendTimeout time.Duration

	queue    chan Event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize overrides the event queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithSendTimeout bounds how long one sink delivery may take.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher over the given sinks and starts
// its delivery worker. Nil sinks are skipped.
func NewDispatcher(log zerolog.Logger, sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:         log.With().Str("component", "notify").Logger(),
		sendTimeout: defaultSendTimeout,
		queue:       make(chan Event, defaultQueueSize),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Stop shuts the delivery worker down. Events already queued are
// delivered first; publishing after Stop is a silent no-op.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	<-d.done
}

// AlarmRaised implements alarms.Notifier.
func (d *Dispatcher) AlarmRaised(alarm alarms.Alarm) {
	d.enqueue(Event{Type: EventAlarmRaised, Timestamp: alarm.RaisedAt, Alarm: &alarm})
}

// AlarmCleared implements alarms.Notifier.
func (d *Dispatcher) AlarmCleared(alarm alarms.Alarm) {
	at := alarm.RaisedAt
	if alarm.ClearedAt != nil {
		at = *alarm.ClearedAt
	}
	d.enqueue(Event{Type: EventAlarmCleared, Timestamp: at, Alarm: &alarm})
}

// AlarmAcknowledged implements alarms.Notifier.
func (d *Dispatcher) AlarmAcknowledged(alarm alarms.Alarm) {
	at := time.Now()
	if alarm.AcknowledgedAt != nil {
		at = *alarm.AcknowledgedAt
	}
	d.enqueue(Event{Type: EventAlarmAcknowledged, Timestamp: at, Alarm: &alarm})
}

// WidgetCreated implements widgets.LayoutSink.
func (d *Dispatcher) WidgetCreated(w widgets.Widget) {
	d.enqueue(Event{Type: EventWidgetCreated, Timestamp: time.Now(), Widget: &w})
}

// WidgetRemoved implements widgets.LayoutSink.
func (d *Dispatcher) WidgetRemoved(w widgets.Widget) {
	d.enqueue(Event{Type: EventWidgetRemoved, Timestamp: time.Now(), Widget: &w})
}

func (d *Dispatcher) enqueue(event Event) {
	if d == nil {
		return
	}
	select {
	case <-d.stop:
		return
	default:
	}
	select {
	case d.queue <- event:
	default:
		metrics.NotifyDropped()
		d.log.Warn().Str("event", event.Type).Msg("Notification dropped, queue full")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			// Drain what was queued before the stop.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		if err := sink.Publish(ctx, event); err != nil {
			d.log.Warn().
				Err(err).
				Str("event", event.Type).
				Msg("Notification delivery failed")
		}
		cancel()
	}
}
