package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/miradorstack/pool-watcher/internal/engine"
	"github.com/miradorstack/pool-watcher/internal/metrics"
	"github.com/miradorstack/pool-watcher/internal/models"
	"github.com/miradorstack/pool-watcher/internal/parser"
)

// LineSource delivers raw log lines in arrival order until ctx is cancelled.
type LineSource interface {
	Follow(ctx context.Context, handle func(line string)) error
}

// Analyzer is the subset of the engine the service drives.
type Analyzer interface {
	Ingest(ctx context.Context, record models.Record) []models.AlertRequest
	SetMaintenance(enabled bool)
	Maintenance() bool
	Status() engine.Status
}

// WatcherService wires a line source through the parser into the analysis engine.
type WatcherService struct {
	logger   *slog.Logger
	source   LineSource
	analyzer Analyzer
}

// NewWatcherService constructs the watcher facade.
func NewWatcherService(logger *slog.Logger, source LineSource, analyzer Analyzer) *WatcherService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatcherService{logger: logger, source: source, analyzer: analyzer}
}

// Run follows the source until ctx is cancelled.
func (s *WatcherService) Run(ctx context.Context) error {
	s.logger.Info("watching log source")
	return s.source.Follow(ctx, func(line string) {
		s.HandleLine(ctx, line)
	})
}

// HandleLine parses a single line and feeds the resulting record to the engine. Blank and
// unparsable lines never reach the engine.
func (s *WatcherService) HandleLine(ctx context.Context, line string) []models.AlertRequest {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	record, result := parser.Parse(line)
	metrics.ObserveParse(string(result))
	if result == parser.ResultUnparsable {
		s.logger.Debug("unparsable log line", slog.String("line", strings.TrimRight(line, "\r\n")))
		return nil
	}

	alerts := s.analyzer.Ingest(ctx, record)
	for _, alert := range alerts {
		s.logger.Info("alert raised", slog.String("kind", string(alert.Kind)), slog.String("title", alert.Title))
	}
	return alerts
}

// SetMaintenance toggles alert suppression at runtime.
func (s *WatcherService) SetMaintenance(enabled bool) {
	s.analyzer.SetMaintenance(enabled)
}

// Maintenance reports whether alerts are currently suppressed.
func (s *WatcherService) Maintenance() bool {
	return s.analyzer.Maintenance()
}

// Status returns the engine's current view.
func (s *WatcherService) Status() engine.Status {
	return s.analyzer.Status()
}
