package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pliefoog/helmdash/internal/alarms"
	"github.com/pliefoog/helmdash/internal/discovery"
	"github.com/pliefoog/helmdash/internal/feed"
	"github.com/pliefoog/helmdash/internal/observability/metrics"
	"github.com/pliefoog/helmdash/internal/telemetry"
	"github.com/pliefoog/helmdash/internal/widgets"
)

const (
	defaultEvaluateEvery  = time.Second
	defaultReconcileEvery = 10 * time.Second
)

// Config holds the runner cadences.
type Config struct {
	EvaluateEvery  time.Duration
	ReconcileEvery time.Duration
}

// Deps bundles the collaborators the runner drives. Notifier receives
// manual acknowledgements; raise/clear events flow through the engine's
// own notifier.
type Deps struct {
	Feed     *feed.Client
	Metrics  *telemetry.Store
	Alarms   *alarms.Store
	Engine   *alarms.Engine
	Tracker  *discovery.Tracker
	Manager  *widgets.Manager
	Notifier alarms.Notifier
}

// Status is the live snapshot served by the status endpoint.
type Status struct {
	Feed         feed.Health `json:"feed"`
	Monitoring   bool        `json:"monitoring"`
	ActiveAlarms int         `json:"activeAlarms"`
	Metrics      int         `json:"metrics"`
	Widgets      int         `json:"widgets"`
}

// Runner owns the safety core's loops: one goroutine keeps the feed
// connected, one applies envelopes serially (the store's single
// writer), one evaluates thresholds on a fixed cadence against a
// consistent snapshot, and one reconciles instance presence on a
// coarser cadence. Control operations arrive from the API between
// ticks; none of the loops ever waits on notification I/O.
type Runner struct {
	log        zerolog.Logger
	cfg        Config
	deps       Deps
	thresholds []alarms.Threshold
	paths      []string

	mu         sync.Mutex
	latestScan discovery.Scan
	scanSeen   bool
	monitoring bool
}

// NewRunner creates a runner over the given collaborators. Instance
// monitoring starts enabled.
func NewRunner(deps Deps, thresholds []alarms.Threshold, cfg Config, log zerolog.Logger) *Runner {
	if cfg.EvaluateEvery <= 0 {
		cfg.EvaluateEvery = defaultEvaluateEvery
	}
	if cfg.ReconcileEvery <= 0 {
		cfg.ReconcileEvery = defaultReconcileEvery
	}
	return &Runner{
		log:        log.With().Str("component", "pipeline").Logger(),
		cfg:        cfg,
		deps:       deps,
		thresholds: thresholds,
		paths:      thresholdPaths(thresholds),
		monitoring: true,
	}
}

// thresholdPaths collects the distinct data paths under evaluation so
// each tick captures exactly the values it needs.
func thresholdPaths(thresholds []alarms.Threshold) []string {
	seen := make(map[string]struct{}, len(thresholds))
	out := make([]string, 0, len(thresholds))
	for _, t := range thresholds {
		if _, ok := seen[t.DataPath]; ok {
			continue
		}
		seen[t.DataPath] = struct{}{}
		out = append(out, t.DataPath)
	}
	return out
}

// Run drives the loops until ctx is cancelled. In-flight evaluate and
// reconcile calls complete; no new cycle starts after cancellation.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.connectionLoop(gctx) })
	g.Go(func() error { return r.ingestLoop(gctx) })
	g.Go(func() error { return r.evaluateLoop(gctx) })
	g.Go(func() error { return r.reconcileLoop(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// connectionLoop keeps the feed connected, redialling on every lost
// connection. Connect blocks with its own backoff, so this loop only
// spins once per established session.
func (r *Runner) connectionLoop(ctx context.Context) error {
	for {
		if err := r.deps.Feed.Connect(ctx); err != nil {
			// Connect fails only on cancellation or client close.
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-r.deps.Feed.Done():
			return nil
		case err := <-r.deps.Feed.Errors():
			if err != nil {
				r.log.Warn().Err(err).Msg("Feed connection lost, reconnecting")
			}
		}
	}
}

// ingestLoop is the single writer of the metric store.
func (r *Runner) ingestLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-r.deps.Feed.Envelopes():
			r.applyEnvelope(env)
		}
	}
}

func (r *Runner) applyEnvelope(env feed.Envelope) {
	switch env.Type {
	case feed.TypeReading:
		changed := r.deps.Metrics.Update(*env.Reading)
		metrics.ReadingApplied(changed)
	case feed.TypeDiscovery:
		r.mu.Lock()
		r.latestScan = *env.Scan
		r.scanSeen = true
		r.mu.Unlock()
	}
}

func (r *Runner) evaluateLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.EvaluateEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.evaluateOnce(time.Now())
		}
	}
}

// evaluateOnce runs one tick over a single consistent snapshot. No
// threshold sees a value from a different tick.
func (r *Runner) evaluateOnce(now time.Time) {
	start := time.Now()
	snap := alarms.Snapshot(r.deps.Metrics.CaptureValues(r.paths))
	r.deps.Engine.Evaluate(r.thresholds, snap, now)
	metrics.EvaluateTick(time.Since(start).Seconds())
}

func (r *Runner) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReconcileEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.reconcileOnce(time.Now())
		}
	}
}

// reconcileOnce diffs the latest scan against bound widgets and applies
// the result. Skipped entirely while monitoring is stopped or before
// the first scan arrives, so departure misses are only counted on real
// reconcile cycles.
func (r *Runner) reconcileOnce(now time.Time) {
	r.mu.Lock()
	scan, seen, monitoring := r.latestScan, r.scanSeen, r.monitoring
	r.mu.Unlock()
	if !monitoring || !seen {
		return
	}

	diff := r.deps.Tracker.Reconcile(r.deps.Manager.Bound(), scan, now)
	created, removed := r.deps.Manager.Apply(diff)
	metrics.ReconcileCycle()
	if len(created) > 0 || len(removed) > 0 {
		r.log.Info().
			Int("created", len(created)).
			Int("removed", len(removed)).
			Msg("Reconcile applied widget changes")
	}
}

// MuteAlarmsFor opens a global mute window. Raising is suppressed
// until it ends; clearing still runs.
func (r *Runner) MuteAlarmsFor(minutes int) time.Time {
	return r.deps.Alarms.MuteFor(time.Duration(minutes)*time.Minute, time.Now())
}

// AcknowledgeAlarm marks an active alarm acknowledged and fans the
// event out. Unknown, cleared or already-acknowledged ids are a no-op.
func (r *Runner) AcknowledgeAlarm(id, by string) (alarms.Alarm, bool) {
	acked, ok := r.deps.Alarms.Acknowledge(id, by, time.Now())
	if !ok {
		return alarms.Alarm{}, false
	}
	if r.deps.Notifier != nil {
		r.deps.Notifier.AlarmAcknowledged(acked)
	}
	return acked, true
}

// ForceInstanceCleanup removes every bound widget whose instance is
// absent from the latest scan, bypassing the departure debounce. The
// operator escape hatch, not the default path. Before the first scan
// nothing is removed: no presence data is not the same as absence.
func (r *Runner) ForceInstanceCleanup() []widgets.Widget {
	r.mu.Lock()
	scan, seen := r.latestScan, r.scanSeen
	r.mu.Unlock()
	if !seen {
		r.log.Warn().Msg("Instance cleanup skipped, no discovery scan seen yet")
		return nil
	}

	present := make(map[string]bool)
	for key := range scan.Flatten() {
		present[key] = true
	}
	removed := r.deps.Manager.CleanupOrphans(present)
	if len(removed) > 0 {
		r.log.Info().Int("removed", len(removed)).Msg("Forced instance cleanup")
	}
	return removed
}

// StartInstanceMonitoring resumes presence reconciliation.
func (r *Runner) StartInstanceMonitoring() {
	r.setMonitoring(true)
}

// StopInstanceMonitoring pauses presence reconciliation. Widgets and
// debounce counters keep their state; in-flight cycles complete but no
// new cycle starts.
func (r *Runner) StopInstanceMonitoring() {
	r.setMonitoring(false)
}

func (r *Runner) setMonitoring(enabled bool) {
	r.mu.Lock()
	changed := r.monitoring != enabled
	r.monitoring = enabled
	r.mu.Unlock()
	if changed {
		r.log.Info().Bool("enabled", enabled).Msg("Instance monitoring toggled")
	}
}

// Monitoring reports whether presence reconciliation is running.
func (r *Runner) Monitoring() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitoring
}

// Status assembles the live snapshot for the status endpoint.
func (r *Runner) Status() Status {
	return Status{
		Feed:         r.deps.Feed.Health(),
		Monitoring:   r.Monitoring(),
		ActiveAlarms: len(r.deps.Alarms.Active()),
		Metrics:      r.deps.Metrics.Count(),
		Widgets:      r.deps.Manager.Count(),
	}
}
