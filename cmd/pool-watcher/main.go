package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/pool-watcher/internal/api"
	"github.com/miradorstack/pool-watcher/internal/config"
	"github.com/miradorstack/pool-watcher/internal/engine"
	"github.com/miradorstack/pool-watcher/internal/metrics"
	"github.com/miradorstack/pool-watcher/internal/services"
	"github.com/miradorstack/pool-watcher/internal/sink"
	"github.com/miradorstack/pool-watcher/internal/tailer"
	"github.com/miradorstack/pool-watcher/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pool-watcher",
		slog.String("log_path", cfg.Source.LogPath),
		slog.Int("window", cfg.Analysis.WindowSize),
		slog.Float64("threshold_percent", cfg.Analysis.ErrorRateThreshold),
		slog.Duration("cooldown", cfg.Analysis.Cooldown),
		slog.Bool("maintenance", cfg.Analysis.Maintenance),
		slog.Bool("webhook", cfg.Alerts.WebhookURL != ""),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	downstream, closeSinks := buildSinks(cfg.Alerts, logger)
	defer closeSinks()

	dispatcher := sink.NewDispatcher(downstream, cfg.Alerts.QueueDepth, cfg.Alerts.WebhookTimeout*2, logger)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(context.Background())
		close(dispatcherDone)
	}()

	analysis := engine.NewEngine(engine.Config{
		WindowSize:         cfg.Analysis.WindowSize,
		ErrorRateThreshold: cfg.Analysis.ErrorRateThreshold,
		MinSamples:         cfg.Analysis.MinSamples,
		Cooldown:           cfg.Analysis.Cooldown,
		Maintenance:        cfg.Analysis.Maintenance,
		ExpectedPool:       cfg.Analysis.ActivePool,
	}, dispatcher, logger)

	follower := tailer.New(tailer.Config{
		Path:         cfg.Source.LogPath,
		PollInterval: cfg.Source.PollInterval,
		FromStart:    cfg.Source.FromStart,
	}, logger)
	watcher := services.NewWatcherService(logger, follower, analysis)

	server, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		opsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      api.NewOpsHandler(watcher, dispatcher, nil),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("ops server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()
	server.SetServing(true)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := watcher.Run(ctx); err != nil {
			logger.Error("watcher stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	server.SetServing(false)
	<-watchDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	dispatcher.Close()
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		logger.Warn("pending alerts not delivered before shutdown")
	}

	server.Shutdown(shutdownCtx)
	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("ops server shutdown", slog.Any("error", err))
		}
	}

	st := analysis.Stats()
	logger.Info("pool-watcher stopped",
		slog.Int("ingested", st.Ingested),
		slog.Int("failovers", st.Failovers),
		slog.Int("delivery_failures", st.DeliveryFailures),
	)
}

// buildSinks assembles the delivery chain: the webhook backed by the outbox when a URL is
// configured, the outbox alone otherwise, and NATS alongside either when enabled.
func buildSinks(cfg config.AlertsConfig, logger *slog.Logger) (sink.Sink, func()) {
	outbox := sink.NewOutboxSink(cfg.OutboxPath)

	var primary sink.Sink = outbox
	if cfg.WebhookURL != "" {
		primary = sink.Fallback{
			Primary:  sink.NewWebhookSink(sink.WebhookConfig{URL: cfg.WebhookURL, Timeout: cfg.WebhookTimeout}),
			Fallback: outbox,
			Logger:   logger,
		}
	} else {
		logger.Warn("no webhook configured, alerts go to the outbox", slog.String("outbox", outbox.Path()))
	}

	if cfg.NATSURL == "" {
		return primary, func() {}
	}
	natsSink, err := sink.NewNATSSink(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		logger.Warn("nats publishing disabled", slog.Any("error", err))
		return primary, func() {}
	}
	return sink.Fanout{primary, natsSink}, natsSink.Close
}
