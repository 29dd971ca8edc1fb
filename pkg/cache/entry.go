package cache

import (
	"time"
)

// Entry is the cached result of one successful fetch.
// Entries are never mutated after they are stored; a refresh replaces the
// whole entry.
type Entry struct {
	// StoredAt is when the fetch completed.
	StoredAt time.Time `json:"stored_at"`

	// Payload is the raw response body.
	Payload []byte `json:"payload"`
}

// Age returns how long ago the entry was stored, relative to now.
// Returns 0 if StoredAt is in the future.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.StoredAt)
	if age < 0 {
		return 0
	}
	return age
}
