package widgets

import (
	"sort"
	"strings"
	"sync"

	"github.com/pliefoog/helmdash/internal/discovery"
	"github.com/pliefoog/helmdash/internal/observability/metrics"
	"github.com/rs/zerolog"
)

// LayoutSink receives widget mutations so the external layout
// persistence can absorb them. Implementations must not call back
// into the Manager.
type LayoutSink interface {
	WidgetCreated(w Widget)
	WidgetRemoved(w Widget)
}

// Manager owns the instance-bound subset of the dashboard. It creates
// a widget when a new instance appears, removes it when the instance's
// departure is confirmed, and never touches widgets the user placed.
type Manager struct {
	log         zerolog.Logger
	rowCapacity int
	sink        LayoutSink

	mu      sync.RWMutex
	widgets map[string]Widget // widget id -> widget
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRowCapacity overrides the grid row capacity in cells.
func WithRowCapacity(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.rowCapacity = n
		}
	}
}

// WithLayoutSink attaches a sink for widget mutations.
func WithLayoutSink(sink LayoutSink) ManagerOption {
	return func(m *Manager) {
		m.sink = sink
	}
}

// NewManager creates an empty widget manager.
func NewManager(log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:         log.With().Str("component", "widget-manager").Logger(),
		rowCapacity: defaultRowCapacity,
		widgets:     make(map[string]Widget),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed loads a restored layout, typically handed over by the external
// persistence collaborator at startup. Seeding does not emit events.
func (m *Manager) Seed(widgets []Widget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range widgets {
		if w.ID == "" {
			continue
		}
		m.widgets[w.ID] = w
	}
}

// Bound returns the binding keys that currently have a widget.
func (m *Manager) Bound() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool)
	for _, w := range m.widgets {
		if key := w.BindingKey(); key != "" {
			out[key] = true
		}
	}
	return out
}

// Apply turns one reconcile diff into widget mutations and reports
// what actually changed. Re-applying the same diff is a no-op.
func (m *Manager) Apply(diff discovery.Diff) (created, removed []Widget) {
	m.mu.Lock()
	for _, p := range diff.Appeared {
		if w, ok := m.createLocked(p); ok {
			created = append(created, w)
		}
	}
	for _, key := range diff.Departed {
		if w, ok := m.removeLocked(key); ok {
			removed = append(removed, w)
		}
	}
	m.mu.Unlock()

	m.emitCreated(created)
	m.emitRemoved(removed, "Widget removed")
	return created, removed
}

// CreateForInstance creates the widget for one instance. Returns the
// existing widget and false when the binding already has one.
func (m *Manager) CreateForInstance(p discovery.Presence) (Widget, bool) {
	m.mu.Lock()
	w, ok := m.createLocked(p)
	if !ok {
		w = m.widgets[p.Key()]
	}
	m.mu.Unlock()

	if ok {
		m.emitCreated([]Widget{w})
	}
	return w, ok
}

func (m *Manager) createLocked(p discovery.Presence) (Widget, bool) {
	id := p.Key()
	if _, exists := m.widgets[id]; exists {
		return Widget{}, false
	}
	slot := nextSlot(m.sortedLocked(), defaultWidgetWidth, defaultWidgetHeight, m.rowCapacity)
	w := Widget{
		ID:     id,
		Type:   p.Type,
		Title:  widgetTitle(p),
		Layout: slot,
		Settings: Settings{
			InstanceID:   p.ID,
			InstanceType: p.Type,
		},
	}
	m.widgets[id] = w
	return w, true
}

func (m *Manager) removeLocked(key string) (Widget, bool) {
	if key == "" {
		return Widget{}, false
	}
	for id, w := range m.widgets {
		if w.BindingKey() != key {
			continue
		}
		delete(m.widgets, id)
		return w, true
	}
	return Widget{}, false
}

// CleanupOrphans force-removes every bound widget whose instance is
// absent from the present set, bypassing the departure debounce. This
// is the operator escape hatch, not the regular removal path.
func (m *Manager) CleanupOrphans(present map[string]bool) []Widget {
	m.mu.Lock()
	var removed []Widget
	for id, w := range m.widgets {
		if !w.Bound() || present[w.BindingKey()] {
			continue
		}
		delete(m.widgets, id)
		removed = append(removed, w)
	}
	m.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	m.emitRemoved(removed, "Orphaned widget force-removed")
	return removed
}

// Widgets returns every widget ordered by id.
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	out := m.sortedLocked()
	m.mu.RUnlock()
	return out
}

// WidgetByID returns one widget by id.
func (m *Manager) WidgetByID(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.widgets[id]
	return w, ok
}

// Count returns the number of widgets.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.widgets)
}

func (m *Manager) sortedLocked() []Widget {
	out := make([]Widget, 0, len(m.widgets))
	for _, w := range m.widgets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) emitCreated(ws []Widget) {
	for _, w := range ws {
		m.log.Info().
			Str("widget", w.ID).
			Int("x", w.Layout.X).
			Int("y", w.Layout.Y).
			Msg("Widget created")
		metrics.WidgetEvent("created")
		if m.sink != nil {
			m.sink.WidgetCreated(w)
		}
	}
}

func (m *Manager) emitRemoved(ws []Widget, msg string) {
	for _, w := range ws {
		m.log.Info().Str("widget", w.ID).Msg(msg)
		metrics.WidgetEvent("removed")
		if m.sink != nil {
			m.sink.WidgetRemoved(w)
		}
	}
}

func widgetTitle(p discovery.Presence) string {
	if p.Title != "" {
		return p.Title
	}
	if p.Type == "" {
		return p.ID
	}
	return strings.ToUpper(p.Type[:1]) + p.Type[1:] + " " + p.ID
}
