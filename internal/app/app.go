// Package app wires every component into a running pipeline: it builds
// sources and parsers from configuration, starts the engine, the metrics
// server and the resource monitor, drains parsed records, and shuts
// everything down gracefully on SIGINT/SIGTERM.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/logstream/internal/analytics"
	"github.com/mdzesseis/logstream/internal/config"
	"github.com/mdzesseis/logstream/internal/dispatcher"
	"github.com/mdzesseis/logstream/internal/ingest"
	"github.com/mdzesseis/logstream/internal/logging"
	"github.com/mdzesseis/logstream/internal/metrics"
	"github.com/mdzesseis/logstream/internal/parser"
	"github.com/mdzesseis/logstream/internal/resourcemon"
	"github.com/mdzesseis/logstream/internal/tracing"
)

// App is the fully wired pipeline, ready to Run.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	metricsRegistry *metrics.Registry
	metricsServer   *metrics.Server
	tracingManager  *tracing.Manager
	resourceMonitor *resourcemon.Monitor
	analyticsState  *analytics.State
	engine          *dispatcher.Engine

	dirWatchers []*ingest.DirectoryWatcher
}

// New builds an App from the configuration file at configPath. An empty
// path runs with defaults plus environment overrides.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Level:      cfg.Logging.Level,
	})

	registry := metrics.NewRegistry()
	metricsServer := metrics.NewServer(cfg.MetricsAddr, registry, logger)

	tracingManager, err := tracing.NewManager(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	resourceMonitor := resourcemon.NewMonitor(resourcemon.Config{
		Enabled:       cfg.ResourceMonitor.Enabled,
		CheckInterval: cfg.ResourceMonitor.CheckInterval,
	}, registry, logger)

	analyticsState := analytics.NewState(
		time.Duration(cfg.AnalyticsWindowSizeSeconds)*time.Second,
		logger,
		registry,
	)

	parserRegistry := parser.NewParserRegistry()
	parserRegistry.Register(parser.NewJsonParser())
	parserRegistry.Register(parser.NewPlainTextParser())

	engine := dispatcher.NewEngine(dispatcher.Config{
		OutputChannelCapacity: cfg.OutputChannelCapacity,
		BatchSize:             cfg.BatchSize,
	}, parserRegistry, analyticsState, logger, registry, tracingManager.GetTracer())

	application := &App{
		cfg:             cfg,
		logger:          logger,
		metricsRegistry: registry,
		metricsServer:   metricsServer,
		tracingManager:  tracingManager,
		resourceMonitor: resourceMonitor,
		analyticsState:  analyticsState,
		engine:          engine,
	}

	if err := application.buildSources(); err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	return application, nil
}

// buildSources translates each configured SourceConfig into an ingest.Source
// and registers it with the engine. A file source with Watch set expands
// the directory into one FileSource per file present at startup, added to
// the engine here since AddSource is only legal before Run; the
// DirectoryWatcher keeps running after Run to report files created later,
// see consumeDiscoveredFiles.
func (a *App) buildSources() error {
	for _, sc := range a.cfg.Sources {
		switch sc.Type {
		case "file":
			if sc.Watch {
				watcher := ingest.NewDirectoryWatcher(sc.Path, a.logger)
				existing, err := watcher.ListExisting()
				if err != nil {
					return fmt.Errorf("scan watch directory %q: %w", sc.Path, err)
				}
				for _, path := range existing {
					a.engine.AddSource(ingest.NewFileSource(path, ingest.FileSourceConfig{Follow: sc.Follow}, a.logger))
				}
				a.dirWatchers = append(a.dirWatchers, watcher)
				continue
			}
			a.engine.AddSource(ingest.NewFileSource(sc.Path, ingest.FileSourceConfig{Follow: sc.Follow}, a.logger))
		case "network":
			a.engine.AddSource(ingest.NewNetworkSource(sc.Addr, a.logger))
		default:
			return fmt.Errorf("unknown source type %q", sc.Type)
		}
	}
	return nil
}

// Run starts every background component, drains parsed records until
// shutdown, and blocks until every source is exhausted, SIGINT/SIGTERM
// arrives, or ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.metricsServer.Start()
	go a.resourceMonitor.Run(ctx)

	for _, watcher := range a.dirWatchers {
		if err := watcher.Start(); err != nil {
			a.logger.WithError(err).WithField("dir", watcher.Dir()).Error("directory watcher failed to start")
			continue
		}
		go a.consumeDiscoveredFiles(ctx, watcher)
	}

	out := a.engine.Run(ctx)

	for {
		select {
		case parsed, ok := <-out:
			if !ok {
				a.logger.Info("engine drained, all sources exhausted")
				return a.shutdown()
			}
			a.logger.WithFields(logrus.Fields{
				"source":  parsed.Source,
				"level":   parsed.Level.String(),
				"message": parsed.Message,
			}).Debug("record processed")
			a.metricsRegistry.SetActiveUsers(a.analyticsState.ActiveUsersCount())
		case <-ctx.Done():
			a.logger.Info("shutdown signal received")
			return a.shutdown()
		}
	}
}

// consumeDiscoveredFiles reports files a DirectoryWatcher finds after
// startup. Files present when buildSources ran are already tailed (see
// buildSources); files created afterward cannot be added to the running
// engine, since AddSource is only legal before Run and this pipeline is
// built for a static-at-startup source list, so they are only logged here.
// A caller needing truly dynamic sources would restart the engine.
func (a *App) consumeDiscoveredFiles(ctx context.Context, watcher *ingest.DirectoryWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-watcher.Files():
			if !ok {
				return
			}
			a.logger.WithField("path", path).Info("directory watcher discovered file created after startup, dynamic sources unsupported")
		}
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, watcher := range a.dirWatchers {
		_ = watcher.Stop()
	}
	if err := a.tracingManager.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("tracing shutdown failed")
	}
	if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("metrics server shutdown failed")
	}
	return nil
}
