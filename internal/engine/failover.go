package engine

import "github.com/miradorstack/pool-watcher/internal/models"

// FailoverDetector remembers the last serving pool and reports when it changes.
//
// The stored pool is replaced as soon as a transition is seen, before any alert is
// admitted or delivered. A transition therefore yields at most one event, even when
// the resulting alert is suppressed.
type FailoverDetector struct {
	current string
	known   bool
}

// NewFailoverDetector seeds the detector with the operator-declared active pool.
// An empty expectedPool leaves the state unset so the first observation becomes the baseline.
func NewFailoverDetector(expectedPool string) *FailoverDetector {
	d := &FailoverDetector{}
	if expectedPool != "" {
		d.current = expectedPool
		d.known = true
	}
	return d
}

// Observe feeds the pool seen on a record. Absent pools are ignored.
func (d *FailoverDetector) Observe(pool *string) (models.FailoverEvent, bool) {
	if pool == nil || *pool == "" {
		return models.FailoverEvent{}, false
	}
	observed := *pool
	if !d.known {
		d.current = observed
		d.known = true
		return models.FailoverEvent{}, false
	}
	if observed == d.current {
		return models.FailoverEvent{}, false
	}

	event := models.FailoverEvent{From: d.current, To: observed}
	d.current = observed
	return event, true
}

// Current returns the last observed pool, if any.
func (d *FailoverDetector) Current() (string, bool) {
	return d.current, d.known
}
