package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/pool-watcher/internal/metrics"
	"github.com/miradorstack/pool-watcher/internal/models"
)

const (
	// DefaultMinSamples is the window size required before error-rate alerts are eligible.
	DefaultMinSamples = 10
	// DefaultErrorRateThreshold replaces a non-finite threshold, which would never compare true.
	DefaultErrorRateThreshold = 2.0
	// topUpstreamLimit caps the upstream breakdown in error-rate alerts.
	topUpstreamLimit = 5
)

// Sink receives admitted alerts. Implementations own transport, retries and backoff.
type Sink interface {
	Deliver(ctx context.Context, alert models.AlertRequest) error
}

// Config carries the tunables consumed by the analysis engine.
type Config struct {
	WindowSize         int
	ErrorRateThreshold float64
	MinSamples         int
	Cooldown           time.Duration
	Maintenance        bool
	ExpectedPool       string
}

// Stats exposes diagnostic counters kept by the engine.
type Stats struct {
	Ingested         int
	Errors           int
	Failovers        int
	Admitted         map[models.AlertKind]int
	Skipped          map[models.AlertKind]int
	DeliveryFailures int
}

// Status is a point-in-time view used by the ops surface.
type Status struct {
	ActivePool  string
	PoolKnown   bool
	Window      models.WindowSnapshot
	Capacity    int
	Maintenance bool
	Stats       Stats
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for admission and record stamping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine classifies records one at a time and raises failover and error-rate alerts.
// Ingest must be called from a single consumer so window order and failover detection
// follow arrival order; the mutex only protects concurrent Status reads.
type Engine struct {
	mu       sync.Mutex
	logger   *slog.Logger
	cfg      Config
	window   *Window
	failover *FailoverDetector
	gate     *AdmissionGate
	sink     Sink
	now      func() time.Time
	stats    Stats
}

// NewEngine constructs an engine. A nil sink keeps admitted alerts in the return value only.
func NewEngine(cfg Config, sink Sink, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if math.IsNaN(cfg.ErrorRateThreshold) || math.IsInf(cfg.ErrorRateThreshold, 0) {
		logger.Warn("non-finite error rate threshold, using default",
			slog.Float64("default", DefaultErrorRateThreshold))
		cfg.ErrorRateThreshold = DefaultErrorRateThreshold
	}

	e := &Engine{
		logger:   logger,
		cfg:      cfg,
		window:   NewWindow(cfg.WindowSize),
		failover: NewFailoverDetector(cfg.ExpectedPool),
		gate:     NewAdmissionGate(cfg.Cooldown, cfg.Maintenance),
		sink:     sink,
		now:      time.Now,
		stats: Stats{
			Admitted: make(map[models.AlertKind]int),
			Skipped:  make(map[models.AlertKind]int),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest feeds one record through the window, failover and error-rate checks and returns
// the alerts that passed admission, failover first. Admitted alerts are handed to the sink
// after the engine lock is released, so a slow sink never blocks Status.
func (e *Engine) Ingest(ctx context.Context, record models.Record) []models.AlertRequest {
	admitted := e.evaluate(record)
	for _, alert := range admitted {
		e.deliver(ctx, alert)
	}
	return admitted
}

func (e *Engine) evaluate(record models.Record) []models.AlertRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	if record.ObservedAt.IsZero() {
		record.ObservedAt = e.now()
	}

	snapshot := e.window.Ingest(record)
	e.stats.Ingested++
	if record.IsError() {
		e.stats.Errors++
	}
	metrics.ObserveRecord(snapshot.Size, snapshot.ErrorRatePercent)

	candidates := make([]models.AlertRequest, 0, 2)
	if event, ok := e.failover.Observe(record.Pool); ok {
		e.stats.Failovers++
		metrics.ObserveFailover()
		e.logger.Info("failover detected", slog.String("from", event.From), slog.String("to", event.To))
		candidates = append(candidates, e.failoverAlert(event, snapshot, record))
	}

	if snapshot.Size >= e.cfg.MinSamples && snapshot.ErrorRatePercent > e.cfg.ErrorRateThreshold {
		candidates = append(candidates, e.errorRateAlert(snapshot, record))
	}

	if len(candidates) == 0 {
		return nil
	}

	admitted := make([]models.AlertRequest, 0, len(candidates))
	for _, alert := range candidates {
		decision := e.gate.TryAdmit(alert.Kind, e.now())
		metrics.ObserveAlert(string(alert.Kind), string(decision))
		if !decision.Allowed() {
			e.stats.Skipped[alert.Kind]++
			e.logger.Info("skipping alert", slog.String("kind", string(alert.Kind)), slog.String("reason", string(decision)))
			continue
		}
		e.stats.Admitted[alert.Kind]++
		admitted = append(admitted, alert)
	}
	return admitted
}

// SetMaintenance toggles maintenance suppression at runtime.
func (e *Engine) SetMaintenance(enabled bool) {
	e.gate.SetMaintenance(enabled)
	e.logger.Info("maintenance mode changed", slog.Bool("enabled", enabled))
}

// Maintenance reports whether alerts are suppressed.
func (e *Engine) Maintenance() bool {
	return e.gate.Maintenance()
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyStats()
}

// Status returns the active pool, window snapshot and counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, known := e.failover.Current()
	return Status{
		ActivePool:  pool,
		PoolKnown:   known,
		Window:      e.window.Snapshot(),
		Capacity:    e.window.Cap(),
		Maintenance: e.gate.Maintenance(),
		Stats:       e.copyStats(),
	}
}

func (e *Engine) copyStats() Stats {
	out := e.stats
	out.Admitted = make(map[models.AlertKind]int, len(e.stats.Admitted))
	for k, v := range e.stats.Admitted {
		out.Admitted[k] = v
	}
	out.Skipped = make(map[models.AlertKind]int, len(e.stats.Skipped))
	for k, v := range e.stats.Skipped {
		out.Skipped[k] = v
	}
	return out
}

func (e *Engine) deliver(ctx context.Context, alert models.AlertRequest) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Deliver(ctx, alert); err != nil {
		e.mu.Lock()
		e.stats.DeliveryFailures++
		e.mu.Unlock()
		e.logger.Warn("alert delivery failed", slog.String("kind", string(alert.Kind)), slog.Any("error", err))
	}
}

func (e *Engine) failoverAlert(event models.FailoverEvent, snap models.WindowSnapshot, record models.Record) models.AlertRequest {
	now := e.now()
	title := fmt.Sprintf("Failover detected: %s → %s", event.From, event.To)

	var b strings.Builder
	fmt.Fprintf(&b, "Failover detected at %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Transition: %s → %s\n", event.From, event.To)
	fmt.Fprintf(&b, "Window=%d, errors=%d (%.2f%%)\n", snap.Size, snap.ErrorCount, snap.ErrorRatePercent)
	if release, ok := record.ReleaseName(); ok {
		fmt.Fprintf(&b, "Release: %s\n", release)
	}
	if len(record.UpstreamStatuses) > 0 {
		fmt.Fprintf(&b, "Upstream status: %s\n", joinInts(record.UpstreamStatuses))
	}
	if len(record.UpstreamAddrs) > 0 {
		fmt.Fprintf(&b, "Upstream addr: %s\n", strings.Join(record.UpstreamAddrs, ", "))
	}
	fmt.Fprintf(&b, "Sample: %s", strings.TrimSpace(record.RawText))

	return models.AlertRequest{
		Kind:      models.AlertKindFailover,
		Severity:  models.SeverityFor(models.AlertKindFailover),
		Title:     title,
		Body:      b.String(),
		CreatedAt: now,
	}
}

func (e *Engine) errorRateAlert(snap models.WindowSnapshot, record models.Record) models.AlertRequest {
	title := fmt.Sprintf("High error rate: %.2f%% over last %d requests", snap.ErrorRatePercent, snap.Size)

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Errors: %d/%d (threshold %.2f%%)\n", snap.ErrorCount, snap.Size, e.cfg.ErrorRateThreshold)
	b.WriteString("Top upstreams: ")
	b.WriteString(formatUpstreams(e.window.TopUpstreams(topUpstreamLimit)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Sample: %s", strings.TrimSpace(record.RawText))

	return models.AlertRequest{
		Kind:      models.AlertKindErrorRate,
		Severity:  models.SeverityFor(models.AlertKindErrorRate),
		Title:     title,
		Body:      b.String(),
		CreatedAt: e.now(),
	}
}

func formatUpstreams(counts []models.UpstreamCount) string {
	if len(counts) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Addr, c.Count))
	}
	return strings.Join(parts, ", ")
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	return strings.Join(parts, ", ")
}
