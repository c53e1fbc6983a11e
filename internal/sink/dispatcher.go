package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/pool-watcher/internal/metrics"
	"github.com/miradorstack/pool-watcher/internal/models"
	"github.com/miradorstack/pool-watcher/internal/utils"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept another alert.
	ErrQueueFull = errors.New("alert queue full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("alert dispatcher closed")
)

// Dispatcher decouples alert delivery from the analysis loop. Deliver only enqueues;
// a single worker started by Run hands alerts to the downstream sink in order.
type Dispatcher struct {
	logger  *slog.Logger
	next    Sink
	timeout time.Duration
	queue   chan models.AlertRequest

	latencies *utils.LatencyTracker
	attempts  int

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher constructs a dispatcher with the given queue depth and per-delivery timeout.
func NewDispatcher(next Sink, depth int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if depth <= 0 {
		depth = 16
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		logger:  logger,
		next:    next,
		timeout: timeout,
		queue:   make(chan models.AlertRequest, depth),

		latencies: utils.NewLatencyTracker(256),
	}
}

// DeliveryLatency summarises the durations of recent delivery attempts.
func (d *Dispatcher) DeliveryLatency() utils.LatencySummary {
	return d.latencies.Summary()
}

// Deliver enqueues the alert without blocking.
func (d *Dispatcher) Deliver(_ context.Context, alert models.AlertRequest) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- alert:
		return nil
	default:
		metrics.ObserveDelivery(0, metrics.OutcomeDropped)
		return ErrQueueFull
	}
}

// Run delivers queued alerts until Close is called and the queue is drained. Cancelling
// ctx aborts in-flight deliveries.
func (d *Dispatcher) Run(ctx context.Context) {
	for alert := range d.queue {
		d.send(ctx, alert)
	}
}

// Close stops intake; Run returns once queued alerts are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func (d *Dispatcher) send(ctx context.Context, alert models.AlertRequest) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.next.Deliver(sendCtx, alert)
	duration := time.Since(start)
	d.latencies.Observe(duration)
	d.attempts++
	if d.attempts%20 == 0 {
		summary := d.latencies.Summary()
		d.logger.Info("alert delivery latency", slog.Duration("p50", summary.P50), slog.Duration("p95", summary.P95), slog.Int("samples", summary.Samples))
	}
	if err != nil {
		metrics.ObserveDelivery(duration, metrics.OutcomeError)
		d.logger.Error("alert delivery failed", slog.String("kind", string(alert.Kind)), slog.String("op", utils.OpOf(err)), slog.Any("error", err))
		return
	}
	metrics.ObserveDelivery(duration, metrics.OutcomeSuccess)
	d.logger.Info("alert delivered", slog.String("kind", string(alert.Kind)), slog.String("title", alert.Title), slog.Duration("took", duration))
}
