package engine

import (
	"sync/atomic"
	"time"

	"github.com/miradorstack/pool-watcher/internal/models"
)

// Decision is the outcome of an admission attempt.
type Decision string

const (
	DecisionAdmitted    Decision = "admitted"
	DecisionCooldown    Decision = "cooldown"
	DecisionMaintenance Decision = "maintenance"
)

// Allowed reports whether the alert may fire.
func (d Decision) Allowed() bool { return d == DecisionAdmitted }

// AdmissionGate rate-limits alerts per kind and suppresses everything during maintenance.
// The cooldown map is owned by the engine's single consumer; only the maintenance flag
// may be flipped from other goroutines.
type AdmissionGate struct {
	cooldown    time.Duration
	maintenance atomic.Bool
	lastFired   map[models.AlertKind]time.Time
}

// NewAdmissionGate constructs a gate with the given per-kind cooldown.
func NewAdmissionGate(cooldown time.Duration, maintenance bool) *AdmissionGate {
	if cooldown < 0 {
		cooldown = 0
	}
	g := &AdmissionGate{
		cooldown:  cooldown,
		lastFired: make(map[models.AlertKind]time.Time),
	}
	g.maintenance.Store(maintenance)
	return g
}

// TryAdmit decides whether an alert of kind may fire at now. Admission records the
// firing time immediately; it is not rolled back if delivery later fails.
func (g *AdmissionGate) TryAdmit(kind models.AlertKind, now time.Time) Decision {
	if g.maintenance.Load() {
		return DecisionMaintenance
	}
	if last, ok := g.lastFired[kind]; ok && now.Sub(last) < g.cooldown {
		return DecisionCooldown
	}
	g.lastFired[kind] = now
	return DecisionAdmitted
}

// LastFired returns when kind was last admitted.
func (g *AdmissionGate) LastFired(kind models.AlertKind) (time.Time, bool) {
	t, ok := g.lastFired[kind]
	return t, ok
}

// SetMaintenance toggles maintenance suppression.
func (g *AdmissionGate) SetMaintenance(enabled bool) {
	g.maintenance.Store(enabled)
}

// Maintenance reports whether alerts are currently suppressed.
func (g *AdmissionGate) Maintenance() bool {
	return g.maintenance.Load()
}

// Cooldown returns the configured per-kind cooldown.
func (g *AdmissionGate) Cooldown() time.Duration {
	return g.cooldown
}
