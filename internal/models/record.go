package models

import "time"

// Record is the normalised form of one access-log line.
type Record struct {
	Status           int
	Pool             *string
	Release          *string
	UpstreamStatuses []int
	UpstreamAddrs    []string
	RawText          string
	ObservedAt       time.Time
}

// IsError reports whether the request failed either at the client or at any upstream hop.
func (r Record) IsError() bool {
	if r.Status >= 500 {
		return true
	}
	for _, s := range r.UpstreamStatuses {
		if s >= 500 {
			return true
		}
	}
	return false
}

// PoolName returns the serving pool, treating an empty value as absent.
func (r Record) PoolName() (string, bool) {
	if r.Pool == nil || *r.Pool == "" {
		return "", false
	}
	return *r.Pool, true
}

// ReleaseName returns the release identifier when present.
func (r Record) ReleaseName() (string, bool) {
	if r.Release == nil || *r.Release == "" {
		return "", false
	}
	return *r.Release, true
}

// StringPtr is a helper for building records with optional fields.
func StringPtr(v string) *string {
	return &v
}
