package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultMissLimit is how many consecutive scans an instance must be
// absent from before its departure is confirmed. Discovery sweeps can
// skip a device transiently, so a single miss proves nothing.
const defaultMissLimit = 3

// Diff is the outcome of one reconcile pass: instances detected but
// not yet bound to a widget, and bound instances whose departure is
// confirmed past the debounce.
type Diff struct {
	Appeared []Presence
	Departed []string
}

// InstanceStatus describes one instance the tracker has seen.
type InstanceStatus struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Present    bool      `json:"present"`
	Misses     int       `json:"misses"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type seenRecord struct {
	presence Presence
	at       time.Time
	present  bool
}

// Tracker debounces instance presence across discovery scans. A bound
// instance departs only after missLimit consecutive scans without it;
// reappearing resets the count to zero.
type Tracker struct {
	log       zerolog.Logger
	missLimit int

	mu       sync.Mutex
	misses   map[string]int // binding key -> consecutive missed scans
	lastSeen map[string]seenRecord
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMissLimit overrides the consecutive-miss debounce count.
func WithMissLimit(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.missLimit = n
		}
	}
}

// NewTracker creates a presence tracker.
func NewTracker(log zerolog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		log:       log.With().Str("component", "presence-tracker").Logger(),
		missLimit: defaultMissLimit,
		misses:    make(map[string]int),
		lastSeen:  make(map[string]seenRecord),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reconcile diffs one scan against the set of binding keys that
// currently have a widget. It is total: malformed records were already
// dropped by Flatten and read as absent.
func (t *Tracker) Reconcile(bound map[string]bool, scan Scan, now time.Time) Diff {
	t.mu.Lock()
	defer t.mu.Unlock()

	detected := scan.Flatten()
	var diff Diff

	// Counters for keys no longer bound are stale, e.g. after a forced
	// cleanup removed the widget mid-debounce.
	for key := range t.misses {
		if !bound[key] {
			delete(t.misses, key)
		}
	}

	for key, p := range detected {
		t.lastSeen[key] = seenRecord{presence: p, at: now, present: true}
		if n := t.misses[key]; n > 0 {
			t.log.Debug().Str("instance", key).Int("misses", n).Msg("Instance reappeared")
		}
		delete(t.misses, key)
		if !bound[key] {
			diff.Appeared = append(diff.Appeared, p)
		}
	}

	for key, rec := range t.lastSeen {
		if _, ok := detected[key]; ok {
			continue
		}
		if rec.present {
			rec.present = false
			t.lastSeen[key] = rec
		}
	}

	for key := range bound {
		if _, ok := detected[key]; ok {
			continue
		}
		t.misses[key]++
		if t.misses[key] < t.missLimit {
			t.log.Debug().
				Str("instance", key).
				Int("misses", t.misses[key]).
				Int("limit", t.missLimit).
				Msg("Instance missed a scan")
			continue
		}
		delete(t.misses, key)
		diff.Departed = append(diff.Departed, key)
		t.log.Info().Str("instance", key).Msg("Instance departure confirmed")
	}

	sort.Slice(diff.Appeared, func(i, j int) bool {
		return diff.Appeared[i].Key() < diff.Appeared[j].Key()
	})
	sort.Strings(diff.Departed)
	return diff
}

// PresentKeys returns the binding keys seen in the most recent scan.
func (t *Tracker) PresentKeys() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]bool)
	for key, rec := range t.lastSeen {
		if rec.present {
			out[key] = true
		}
	}
	return out
}

// Instances returns the status of every instance the tracker has seen,
// ordered by type then id.
func (t *Tracker) Instances() []InstanceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]InstanceStatus, 0, len(t.lastSeen))
	for key, rec := range t.lastSeen {
		out = append(out, InstanceStatus{
			Type:       rec.presence.Type,
			ID:         rec.presence.ID,
			Title:      rec.presence.Title,
			Present:    rec.present,
			Misses:     t.misses[key],
			LastSeenAt: rec.at,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type == out[j].Type {
			return out[i].ID < out[j].ID
		}
		return out[i].Type < out[j].Type
	})
	return out
}
