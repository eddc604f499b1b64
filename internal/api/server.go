package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pliefoog/helmdash/internal/alarms"
	"github.com/pliefoog/helmdash/internal/auth"
	"github.com/pliefoog/helmdash/internal/diag"
	"github.com/pliefoog/helmdash/internal/discovery"
	"github.com/pliefoog/helmdash/internal/notify"
	"github.com/pliefoog/helmdash/internal/pipeline"
	"github.com/pliefoog/helmdash/internal/sensors"
	"github.com/pliefoog/helmdash/internal/telemetry"
	"github.com/pliefoog/helmdash/internal/version"
	"github.com/pliefoog/helmdash/internal/widgets"
)

// shutdownTimeout bounds how long in-flight requests may run once the
// daemon is stopping.
const shutdownTimeout = 5 * time.Second

// Deps bundles everything the control API reads from or drives.
type Deps struct {
	Runner    *pipeline.Runner
	Alarms    *alarms.Store
	Metrics   *telemetry.Store
	Tracker   *discovery.Tracker
	Manager   *widgets.Manager
	Hub       *notify.Hub
	LogBuffer *diag.LogBuffer
	Auth      *auth.Middleware
}

// Server provides the HTTP control API: alarm state and control,
// instance and widget views, enriched metric reads, recent logs, the
// prometheus endpoint and the live event socket.
type Server struct {
	log       zerolog.Logger
	deps      Deps
	listen    string
	startTime time.Time
}

// NewServer creates the control API server.
func NewServer(deps Deps, listen string, log zerolog.Logger) *Server {
	return &Server{
		log:       log.With().Str("component", "api").Logger(),
		deps:      deps,
		listen:    listen,
		startTime: time.Now(),
	}
}

// Handler builds the route table. Mutating endpoints under /api are
// bearer-gated when an auth secret is configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.deps.Hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.deps.Auth.Wrap)

		r.Get("/alarms", s.handleAlarms)
		r.Get("/alarms/history", s.handleAlarmHistory)
		r.Get("/alarms/settings", s.handleAlarmSettings)
		r.Put("/alarms/settings", s.handleUpdateAlarmSettings)
		r.Post("/alarms/mute", s.handleMute)
		r.Post("/alarms/{id}/ack", s.handleAcknowledge)

		r.Get("/instances", s.handleInstances)
		r.Get("/widgets", s.handleWidgets)
		r.Post("/widgets/cleanup", s.handleWidgetCleanup)
		r.Post("/monitor/start", s.handleMonitorStart)
		r.Post("/monitor/stop", s.handleMonitorStop)

		r.Get("/metrics", s.handleMetricList)
		r.Get("/metrics/{path}", s.handleMetricRead)
		r.Get("/logs", s.handleLogs)
	})

	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("address", s.listen).Msg("Starting control API")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth returns service health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type statusResponse struct {
	pipeline.Status
	Clients int    `json:"clients"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// handleStatus returns the live state summary.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  s.deps.Runner.Status(),
		Clients: s.deps.Hub.ClientCount(),
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Version: version.Full(),
	})
}

// handleAlarms returns the active alarms, highest severity first.
func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	active := s.deps.Alarms.Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": active,
		"count":  len(active),
	})
}

// handleAlarmHistory returns cleared episodes, newest first.
func (s *Server) handleAlarmHistory(w http.ResponseWriter, r *http.Request) {
	history := s.deps.Alarms.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": history,
		"count":  len(history),
	})
}

// handleAlarmSettings returns the current alarm settings.
func (s *Server) handleAlarmSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Alarms.Settings())
}

// handleUpdateAlarmSettings merges the request over the current
// settings, so a partial body cannot reset fields it never named.
func (s *Server) handleUpdateAlarmSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.deps.Alarms.Settings()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "malformed settings body")
		return
	}
	s.deps.Alarms.SetSettings(settings)
	s.log.Info().Msg("Alarm settings updated")
	writeJSON(w, http.StatusOK, settings)
}

// handleMute opens a global mute window.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed mute body")
		return
	}
	if body.Minutes <= 0 {
		writeError(w, http.StatusBadRequest, "minutes must be positive")
		return
	}
	until := s.deps.Runner.MuteAlarmsFor(body.Minutes)
	writeJSON(w, http.StatusOK, map[string]any{"mutedUntil": until})
}

// handleAcknowledge marks an active alarm acknowledged. The
// acknowledger comes from the body, then the bearer token subject,
// then the local helm station.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		By string `json:"by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed ack body")
		return
	}
	by := body.By
	if by == "" {
		by = auth.SubjectFromContext(r.Context())
	}
	if by == "" {
		by = "helm"
	}

	acked, ok := s.deps.Runner.AcknowledgeAlarm(id, by)
	if !ok {
		writeError(w, http.StatusNotFound, "alarm not active or already acknowledged")
		return
	}
	writeJSON(w, http.StatusOK, acked)
}

// handleInstances returns every instance the presence tracker has seen.
func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	instances := s.deps.Tracker.Instances()
	writeJSON(w, http.StatusOK, map[string]any{
		"instances": instances,
		"count":     len(instances),
	})
}

// handleWidgets returns the dashboard widgets in grid order.
func (s *Server) handleWidgets(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Manager.Widgets()
	writeJSON(w, http.StatusOK, map[string]any{
		"widgets": list,
		"count":   len(list),
	})
}

// handleWidgetCleanup force-removes widgets bound to absent instances.
func (s *Server) handleWidgetCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.deps.Runner.ForceInstanceCleanup()
	if removed == nil {
		removed = []widgets.Widget{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
		"count":   len(removed),
	})
}

// handleMonitorStart resumes instance presence monitoring.
func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	s.deps.Runner.StartInstanceMonitoring()
	writeJSON(w, http.StatusOK, map[string]bool{"monitoring": true})
}

// handleMonitorStop pauses instance presence monitoring.
func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Runner.StopInstanceMonitoring()
	writeJSON(w, http.StatusOK, map[string]bool{"monitoring": false})
}

// handleMetricList returns the enriched view of every stored metric.
func (s *Server) handleMetricList(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Metrics.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": list,
		"count":   len(list),
	})
}

// handleMetricRead returns one enriched metric addressed by data path,
// e.g. /api/metrics/engine.coolantTemp%231 for instance 1.
func (s *Server) handleMetricRead(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed data path")
		return
	}
	path, err := sensors.ParseDataPath(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metric, ok := s.deps.Metrics.Read(path.SensorType, path.Instance, path.MetricKey)
	if !ok {
		writeError(w, http.StatusNotFound, "metric not found")
		return
	}
	writeJSON(w, http.StatusOK, metric)
}

// handleLogs returns recent log entries captured by the ring buffer.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var entries []diag.LogEntry
	if s.deps.LogBuffer != nil {
		entries = s.deps.LogBuffer.GetRecentEntries(200)
	}
	if entries == nil {
		entries = []diag.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
