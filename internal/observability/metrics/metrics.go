package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "helmdash_"

var (
	registerOnce sync.Once

	readingsTotal *prometheus.CounterVec
	readingsDrops *prometheus.CounterVec

	alarmEventsTotal *prometheus.CounterVec

	evaluateTicks    prometheus.Counter
	evaluateDuration prometheus.Histogram

	reconcileCycles prometheus.Counter
	widgetEvents    *prometheus.CounterVec

	feedConnected  prometheus.Gauge
	feedReconnects prometheus.Counter

	notifyDropped prometheus.Counter
)

// Init registers the dashboard metrics with the default registerer.
// Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		readingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Readings applied to the metric store by outcome",
			},
			[]string{"outcome"},
		)
		readingsDrops = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_dropped_total",
				Help: "Readings dropped before application by reason",
			},
			[]string{"reason"},
		)
		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Alarm lifecycle events by event and severity",
			},
			[]string{"event", "severity"},
		)
		evaluateTicks = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "evaluate_ticks_total",
				Help: "Threshold evaluation ticks",
			},
		)
		evaluateDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "evaluate_duration_seconds",
				Help:    "Threshold evaluation tick duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		reconcileCycles = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_cycles_total",
				Help: "Instance reconcile cycles",
			},
		)
		widgetEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "widget_events_total",
				Help: "Widget lifecycle events by event",
			},
			[]string{"event"},
		)
		feedConnected = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "feed_connected",
				Help: "Whether the gateway feed is connected (1) or not (0)",
			},
		)
		feedReconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_reconnects_total",
				Help: "Gateway feed reconnect attempts",
			},
		)
		notifyDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_dropped_total",
				Help: "Events dropped because the notification queue was full",
			},
		)

		prometheus.MustRegister(
			readingsTotal,
			readingsDrops,
			alarmEventsTotal,
			evaluateTicks,
			evaluateDuration,
			reconcileCycles,
			widgetEvents,
			feedConnected,
			feedReconnects,
			notifyDropped,
		)
	})
}

// ReadingApplied counts one reading applied to the store.
func ReadingApplied(changed bool) {
	if readingsTotal == nil {
		return
	}
	outcome := "unchanged"
	if changed {
		outcome = "changed"
	}
	readingsTotal.WithLabelValues(outcome).Inc()
}

// ReadingDropped counts one reading dropped before application.
func ReadingDropped(reason string) {
	if readingsDrops == nil {
		return
	}
	readingsDrops.WithLabelValues(reason).Inc()
}

// AlarmEvent counts one alarm lifecycle event.
func AlarmEvent(event, severity string) {
	if alarmEventsTotal == nil {
		return
	}
	alarmEventsTotal.WithLabelValues(event, severity).Inc()
}

// EvaluateTick records one evaluation tick and its duration.
func EvaluateTick(seconds float64) {
	if evaluateTicks == nil {
		return
	}
	evaluateTicks.Inc()
	evaluateDuration.Observe(seconds)
}

// ReconcileCycle counts one instance reconcile cycle.
func ReconcileCycle() {
	if reconcileCycles == nil {
		return
	}
	reconcileCycles.Inc()
}

// WidgetEvent counts one widget lifecycle event.
func WidgetEvent(event string) {
	if widgetEvents == nil {
		return
	}
	widgetEvents.WithLabelValues(event).Inc()
}

// FeedConnected flags the gateway feed connection state.
func FeedConnected(connected bool) {
	if feedConnected == nil {
		return
	}
	if connected {
		feedConnected.Set(1)
	} else {
		feedConnected.Set(0)
	}
}

// FeedReconnect counts one feed reconnect attempt.
func FeedReconnect() {
	if feedReconnects == nil {
		return
	}
	feedReconnects.Inc()
}

// NotifyDropped counts one event dropped by the notification queue.
func NotifyDropped() {
	if notifyDropped == nil {
		return
	}
	notifyDropped.Inc()
}
