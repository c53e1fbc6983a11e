package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencySummary is a point-in-time view of recent durations.
type LatencySummary struct {
	P50     time.Duration
	P95     time.Duration
	Max     time.Duration
	Samples int
}

// LatencyTracker keeps the most recent duration samples in a ring and computes percentiles.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	full    bool
}

// NewLatencyTracker creates a tracker retaining up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{samples: make([]time.Duration, maxSize)}
}

// Observe records a duration, overwriting the oldest sample once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = d
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count()
}

// Percentile returns the p-th percentile (0-100), or zero without samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	return percentile(l.sorted(), p)
}

// Summary returns p50, p95 and max over the retained samples.
func (l *LatencyTracker) Summary() LatencySummary {
	sorted := l.sorted()
	if len(sorted) == 0 {
		return LatencySummary{}
	}
	return LatencySummary{
		P50:     percentile(sorted, 50),
		P95:     percentile(sorted, 95),
		Max:     sorted[len(sorted)-1],
		Samples: len(sorted),
	}
}

func (l *LatencyTracker) count() int {
	if l.full {
		return len(l.samples)
	}
	return l.next
}

func (l *LatencyTracker) sorted() []time.Duration {
	l.mu.RLock()
	out := append([]time.Duration(nil), l.samples[:l.count()]...)
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[int((p/100.0)*float64(len(sorted)-1))]
}
