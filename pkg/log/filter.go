package log

import (
	"strings"
	"time"
)

// Filter selects events. Zero fields match every event.
type Filter struct {
	// SessionID filters by session trace ID prefix, so the short IDs
	// printed by viewers can be used.
	SessionID string

	// Key filters by session key (0 matches all).
	Key uint64

	// Direction filters by message direction.
	Direction *Direction

	// Layer filters by protocol layer.
	Layer *Layer

	// Category filters by event category.
	Category *Category

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time

	// Role filters by local role.
	Role *Role
}

// Match reports whether event satisfies every criterion of f.
func (f *Filter) Match(event Event) bool {
	if f.SessionID != "" && !strings.HasPrefix(event.SessionID, f.SessionID) {
		return false
	}
	if f.Key != 0 && event.Key != f.Key {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.Role != nil && event.LocalRole != *f.Role {
		return false
	}
	return true
}
