package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Policy kinds accepted by ParsePolicy.
const (
	PolicyRolling  = "rolling"
	PolicyCalendar = "calendar"
)

var (
	// ErrInvalidResetHour is returned when a reset hour is outside [0,23].
	ErrInvalidResetHour = errors.New("reset hour must be between 0 and 23")

	// ErrInvalidTTL is returned when a rolling TTL is not positive.
	ErrInvalidTTL = errors.New("ttl must be positive")

	// ErrUnknownPolicy is returned by ParsePolicy for an unrecognised kind.
	ErrUnknownPolicy = errors.New("unknown expiration policy")
)

// ExpirationPolicy decides whether an entry stored at storedAt is stale at now.
type ExpirationPolicy interface {
	Expired(storedAt, now time.Time) bool
	String() string
}

// RollingTTL expires entries a fixed duration after they were stored.
type RollingTTL struct {
	TTL time.Duration
}

// NewRollingTTL returns a RollingTTL policy. ttl must be positive.
func NewRollingTTL(ttl time.Duration) (RollingTTL, error) {
	if ttl <= 0 {
		return RollingTTL{}, fmt.Errorf("%w: got %v", ErrInvalidTTL, ttl)
	}
	return RollingTTL{TTL: ttl}, nil
}

// Expired reports whether now is strictly after storedAt + TTL.
func (p RollingTTL) Expired(storedAt, now time.Time) bool {
	return now.After(storedAt.Add(p.TTL))
}

func (p RollingTTL) String() string {
	return fmt.Sprintf("rolling(%s)", p.TTL)
}

// CalendarReset expires entries when the UTC calendar day changes or when a
// configured UTC reset hour has been crossed since the entry was stored.
type CalendarReset struct {
	hours []int
}

// NewCalendarReset returns a CalendarReset policy for the given UTC reset
// hours. Duplicates are collapsed; an empty set expires only at day rollover.
func NewCalendarReset(hours ...int) (CalendarReset, error) {
	seen := make(map[int]struct{}, len(hours))
	normalized := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return CalendarReset{}, fmt.Errorf("%w: got %d", ErrInvalidResetHour, h)
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		normalized = append(normalized, h)
	}
	sort.Ints(normalized)

	return CalendarReset{hours: normalized}, nil
}

// Hours returns the sorted reset hours.
func (p CalendarReset) Hours() []int {
	out := make([]int, len(p.hours))
	copy(out, p.hours)
	return out
}

// Expired reports whether the entry's UTC day differs from now's, or whether
// some reset hour h satisfies storedHour < h <= nowHour.
func (p CalendarReset) Expired(storedAt, now time.Time) bool {
	stored := storedAt.UTC()
	current := now.UTC()

	sy, sm, sd := stored.Date()
	cy, cm, cd := current.Date()
	if sy != cy || sm != cm || sd != cd {
		return true
	}

	storedHour := stored.Hour()
	currentHour := current.Hour()
	for _, h := range p.hours {
		if storedHour < h && h <= currentHour {
			return true
		}
	}
	return false
}

func (p CalendarReset) String() string {
	parts := make([]string, len(p.hours))
	for i, h := range p.hours {
		parts[i] = fmt.Sprintf("%02d", h)
	}
	return "calendar(" + strings.Join(parts, ",") + ")"
}

// ParsePolicy builds a policy from its configuration form. ttl is used by the
// rolling kind and hours by the calendar kind.
func ParsePolicy(kind string, ttl time.Duration, hours []int) (ExpirationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case PolicyRolling, "":
		p, err := NewRollingTTL(ttl)
		if err != nil {
			return nil, err
		}
		return p, nil
	case PolicyCalendar:
		p, err := NewCalendarReset(hours...)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, kind)
	}
}
