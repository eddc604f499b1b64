package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/pliefoog/helmdash/internal/alarms"
	"github.com/pliefoog/helmdash/internal/api"
	"github.com/pliefoog/helmdash/internal/auth"
	"github.com/pliefoog/helmdash/internal/config"
	"github.com/pliefoog/helmdash/internal/diag"
	"github.com/pliefoog/helmdash/internal/discovery"
	"github.com/pliefoog/helmdash/internal/feed"
	"github.com/pliefoog/helmdash/internal/notify"
	"github.com/pliefoog/helmdash/internal/observability/metrics"
	"github.com/pliefoog/helmdash/internal/pipeline"
	"github.com/pliefoog/helmdash/internal/telemetry"
	"github.com/pliefoog/helmdash/internal/version"
	"github.com/pliefoog/helmdash/internal/widgets"
)

func main() {
	configDir := flag.String("config", "/config", "Path to the configuration directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Log buffer for the control API (captures the last 1000 entries)
	logBuffer := diag.NewLogBuffer(1000)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Write to both stdout and the log buffer
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	logger := zerolog.New(multiWriter).With().
		Timestamp().
		Logger()

	logger.Info().Str("version", version.Full()).Msg("Starting helmdash")

	cfg, err := config.LoadConfigDir(*configDir)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_dir", *configDir).
			Msg("Failed to load configuration")
	}

	logger.Info().
		Int("threshold_count", len(cfg.Thresholds)).
		Str("feed_url", cfg.Dashboard.Feed.URL).
		Msg("Configuration loaded")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Alarm state, bounded history, configured settings
	alarmStore := alarms.NewStore(logger,
		alarms.WithHistoryRetention(cfg.Dashboard.History.Retention),
		alarms.WithSettings(cfg.Alarms),
	)

	// Metric store with display preferences and the alarm overlay
	metricStore := telemetry.NewStore(logger,
		telemetry.WithFreshFor(cfg.Dashboard.Cadence.Freshness),
		telemetry.WithUnitPreferences(cfg.Dashboard.Units),
	)
	metricStore.SetAlarmOverlay(alarmStore.OverlayFor)

	// Event fan-out: the dashboard socket always, webhook and shore
	// relay when configured
	hub := notify.NewHub(logger)
	go hub.Run(ctx)

	sinks := []notify.Sink{hub}
	if cfg.Dashboard.Webhook.Enabled {
		url := os.Getenv(cfg.Dashboard.Webhook.URLEnv)
		if url == "" {
			logger.Fatal().
				Str("env", cfg.Dashboard.Webhook.URLEnv).
				Msg("Webhook enabled but URL environment variable is empty")
		}
		channel, err := notify.NewWebhookChannel(url, notify.WithTimeout(cfg.Dashboard.Webhook.Timeout))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create webhook channel")
		}
		sink, err := notify.NewWebhookSink(channel, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create webhook sink")
		}
		sinks = append(sinks, sink)
		logger.Info().Msg("Webhook notifications enabled")
	}

	var relay *notify.Relay
	if cfg.Dashboard.Relay.Enabled {
		relay = notify.NewRelay(cfg.Dashboard.Relay.Address, cfg.Dashboard.Relay.Vessel, logger)
		sinks = append(sinks, relay)
		logger.Info().
			Str("address", cfg.Dashboard.Relay.Address).
			Msg("Shore relay enabled")
	}

	dispatcher := notify.NewDispatcher(logger, sinks)

	// Timer-driven acknowledgements reach the sinks too
	autoAck := alarms.NewAutoAcknowledger(alarmStore, logger)
	autoAck.SetOnAcknowledged(dispatcher.AlarmAcknowledged)

	engine := alarms.NewEngine(alarmStore, logger,
		alarms.WithNotifier(alarms.Notifiers{autoAck, dispatcher}),
	)

	tracker := discovery.NewTracker(logger,
		discovery.WithMissLimit(cfg.Dashboard.Discovery.MissLimit),
	)
	manager := widgets.NewManager(logger,
		widgets.WithRowCapacity(cfg.Dashboard.Grid.RowCapacity),
		widgets.WithLayoutSink(dispatcher),
	)

	client := feed.NewClient(cfg.Dashboard.Feed.URL, cfg.Dashboard.Feed.QueueSize, logger)
	client.SetBackoff(feed.Backoff{
		Min: cfg.Dashboard.Feed.ReconnectMin,
		Max: cfg.Dashboard.Feed.ReconnectMax,
	})

	runner := pipeline.NewRunner(pipeline.Deps{
		Feed:     client,
		Metrics:  metricStore,
		Alarms:   alarmStore,
		Engine:   engine,
		Tracker:  tracker,
		Manager:  manager,
		Notifier: dispatcher,
	}, cfg.Thresholds, pipeline.Config{
		EvaluateEvery:  cfg.Dashboard.Cadence.Evaluate,
		ReconcileEvery: cfg.Dashboard.Cadence.Reconcile,
	}, logger)

	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(ctx) }()

	var secret []byte
	if cfg.Dashboard.API.JWTSecretEnv != "" {
		secret = []byte(os.Getenv(cfg.Dashboard.API.JWTSecretEnv))
		if len(secret) == 0 {
			logger.Warn().
				Str("env", cfg.Dashboard.API.JWTSecretEnv).
				Msg("Auth secret environment variable is empty, control API is open")
		}
	}

	server := api.NewServer(api.Deps{
		Runner:    runner,
		Alarms:    alarmStore,
		Metrics:   metricStore,
		Tracker:   tracker,
		Manager:   manager,
		Hub:       hub,
		LogBuffer: logBuffer,
		Auth:      auth.NewMiddleware(secret),
	}, cfg.Dashboard.API.Listen, logger)

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Start(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Msg("helmdash running, press Ctrl+C to stop")
	<-sigChan
	logger.Info().Msg("Shutting down...")

	cancel()

	// In-flight evaluate and reconcile cycles complete before the feed
	// and notifiers wind down.
	if err := <-runnerDone; err != nil {
		logger.Error().Err(err).Msg("Pipeline stopped with error")
	}
	if err := <-serverDone; err != nil {
		logger.Error().Err(err).Msg("API server stopped with error")
	}
	client.Close()
	dispatcher.Stop()
	if relay != nil {
		if err := relay.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing shore relay")
		}
	}
	autoAck.Stop()

	logger.Info().Msg("helmdash stopped")
}
