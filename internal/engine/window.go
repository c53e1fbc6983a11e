package engine

import (
	"sort"

	"github.com/miradorstack/pool-watcher/internal/models"
)

// DefaultWindowSize bounds the window when no capacity is configured.
const DefaultWindowSize = 200

// Window holds the most recent records in insertion order and tracks how many are errors.
// It is not safe for concurrent use; the engine serialises access.
type Window struct {
	records    []models.Record
	head       int
	size       int
	errorCount int
}

// NewWindow creates a window retaining up to capacity records.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{records: make([]models.Record, capacity)}
}

// Ingest appends a record, evicting the oldest once full, and returns the resulting snapshot.
func (w *Window) Ingest(record models.Record) models.WindowSnapshot {
	capacity := len(w.records)
	slot := (w.head + w.size) % capacity
	if w.size == capacity {
		// Full: the slot being written holds the oldest record.
		if w.records[w.head].IsError() {
			w.errorCount--
		}
		w.head = (w.head + 1) % capacity
	} else {
		w.size++
	}
	w.records[slot] = record
	if record.IsError() {
		w.errorCount++
	}
	return w.Snapshot()
}

// Snapshot returns size, error count and error rate without mutating the window.
func (w *Window) Snapshot() models.WindowSnapshot {
	rate := 0.0
	if w.size > 0 {
		rate = float64(w.errorCount) / float64(w.size) * 100
	}
	return models.WindowSnapshot{
		Size:             w.size,
		ErrorCount:       w.errorCount,
		ErrorRatePercent: rate,
	}
}

// Len returns the number of records currently held.
func (w *Window) Len() int { return w.size }

// Cap returns the configured capacity.
func (w *Window) Cap() int { return len(w.records) }

// Records returns a copy of the window contents, oldest first.
func (w *Window) Records() []models.Record {
	out := make([]models.Record, 0, w.size)
	w.each(func(r models.Record) {
		out = append(out, r)
	})
	return out
}

// TopUpstreams ranks upstream addresses by occurrence across the window. A record naming
// several upstreams increments each of them. Ties are ordered by address.
func (w *Window) TopUpstreams(limit int) []models.UpstreamCount {
	counts := make(map[string]int)
	w.each(func(r models.Record) {
		for _, addr := range r.UpstreamAddrs {
			if addr == "" {
				continue
			}
			counts[addr]++
		}
	})
	if len(counts) == 0 {
		return nil
	}

	ranked := make([]models.UpstreamCount, 0, len(counts))
	for addr, n := range counts {
		ranked = append(ranked, models.UpstreamCount{Addr: addr, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Addr < ranked[j].Addr
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func (w *Window) each(fn func(models.Record)) {
	capacity := len(w.records)
	for i := 0; i < w.size; i++ {
		fn(w.records[(w.head+i)%capacity])
	}
}
