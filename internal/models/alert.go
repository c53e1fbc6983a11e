package models

import "time"

// AlertKind enumerates the alert categories raised by the engine.
type AlertKind string

const (
	AlertKindFailover  AlertKind = "failover"
	AlertKindErrorRate AlertKind = "error_rate"
)

// AlertKinds lists every kind in evaluation order.
var AlertKinds = []AlertKind{AlertKindFailover, AlertKindErrorRate}

// Severity captures impact levels.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SeverityFor maps an alert kind onto its default severity.
func SeverityFor(kind AlertKind) Severity {
	if kind == AlertKindFailover {
		return SeverityCritical
	}
	return SeverityWarning
}

// AlertRequest is a candidate or admitted alert handed to a sink.
type AlertRequest struct {
	Kind      AlertKind
	Severity  Severity
	Title     string
	Body      string
	CreatedAt time.Time
}

// WindowSnapshot summarises the sliding window after an insert.
type WindowSnapshot struct {
	Size             int
	ErrorCount       int
	ErrorRatePercent float64
}

// FailoverEvent describes an observed change of serving pool.
type FailoverEvent struct {
	From string
	To   string
}

// UpstreamCount pairs an upstream address with its occurrences in the window.
type UpstreamCount struct {
	Addr  string
	Count int
}
