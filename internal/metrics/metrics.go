package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful deliveries.
	OutcomeSuccess = "success"
	// OutcomeError labels failed deliveries (sink or transport issues).
	OutcomeError = "error"
	// OutcomeDropped labels alerts discarded because the delivery queue was full.
	OutcomeDropped = "dropped"

	// ParseStrict labels lines decoded as JSON.
	ParseStrict = "strict"
	// ParseFallback labels lines salvaged by the field patterns.
	ParseFallback = "fallback"
	// ParseUnparsable labels lines that yielded no record.
	ParseUnparsable = "unparsable"
)

var (
	recordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pool_watcher",
			Name:      "records_total",
			Help:      "Total number of access records ingested by the analysis engine.",
		},
	)

	parseResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pool_watcher",
			Name:      "parse_results_total",
			Help:      "Access log lines processed, partitioned by parse result.",
		},
		[]string{"result"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pool_watcher",
			Name:      "alerts_total",
			Help:      "Candidate alerts, partitioned by kind and admission outcome.",
		},
		[]string{"kind", "outcome"},
	)

	failoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pool_watcher",
			Name:      "failovers_total",
			Help:      "Observed changes of serving pool.",
		},
	)

	windowErrorRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pool_watcher",
			Name:      "window_error_rate_percent",
			Help:      "Error rate over the current sliding window.",
		},
	)

	windowSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pool_watcher",
			Name:      "window_size",
			Help:      "Number of records currently held in the sliding window.",
		},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pool_watcher",
			Name:      "deliveries_total",
			Help:      "Alert deliveries attempted, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	deliveryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pool_watcher",
			Name:      "delivery_seconds",
			Help:      "Alert delivery latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)

// Register attaches pool-watcher collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		recordsTotal,
		parseResultsTotal,
		alertsTotal,
		failoversTotal,
		windowErrorRate,
		windowSize,
		deliveriesTotal,
		deliveryDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRecord records one ingested record and the window state it produced.
func ObserveRecord(size int, errorRatePercent float64) {
	recordsTotal.Inc()
	windowSize.Set(float64(size))
	windowErrorRate.Set(errorRatePercent)
}

// ObserveParse counts a parse result label.
func ObserveParse(result string) {
	parseResultsTotal.WithLabelValues(result).Inc()
}

// ObserveAlert counts a candidate alert by kind and admission outcome.
func ObserveAlert(kind, outcome string) {
	alertsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveFailover counts a detected pool transition.
func ObserveFailover() {
	failoversTotal.Inc()
}

// ObserveDelivery records a delivery duration and outcome label.
func ObserveDelivery(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError && label != OutcomeDropped {
		label = OutcomeSuccess
	}
	deliveriesTotal.WithLabelValues(label).Inc()
	if label == OutcomeDropped {
		return
	}
	if duration < 0 {
		duration = 0
	}
	deliveryDurationSeconds.Observe(duration.Seconds())
}
