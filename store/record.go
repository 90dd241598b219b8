package store

import "time"

// Record is a cached key value together with the moment it was written and
// the TTL the writer asked for.
type Record struct {
	Value      string    `json:"value"`
	SavedAt    time.Time `json:"saved_at"`
	TTLMinutes int       `json:"ttl_minutes"`
}

// TTL returns the record lifetime as a duration.
func (r Record) TTL() time.Duration {
	return time.Duration(r.TTLMinutes) * time.Minute
}

// ExpiresAt returns the instant the record stops being fresh.
func (r Record) ExpiresAt() time.Time {
	return r.SavedAt.Add(r.TTL())
}

// Expired reports whether the record is stale at now.
// A TTL of zero or less is always expired.
func (r Record) Expired(now time.Time) bool {
	if r.TTLMinutes <= 0 {
		return true
	}
	return !now.Before(r.ExpiresAt())
}
