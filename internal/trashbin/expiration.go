package trashbin

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRetentionObligation = "auto"

	defaultMinAgeDays = 30
	noObligation      = -1
)

// Expiration decides whether a trashed item may be removed, following a
// retention obligation of the form "min, max" where each side is a number of
// days or "auto":
//
//	auto       keep 30 days, purge earlier when space is needed
//	D, auto    keep D days, purge earlier when space is needed
//	auto, D    purge after D days or earlier when space is needed
//	D1, D2     purge after D2 days, after D1 days only when space is needed
//	disabled   never purge
type Expiration struct {
	enabled             bool
	minAge              int
	maxAge              int
	canPurgeToSaveSpace bool
	now                 func() time.Time
}

func ParseExpiration(obligation string, now func() time.Time) (*Expiration, error) {
	if now == nil {
		now = time.Now
	}
	e := &Expiration{enabled: true, now: now}

	obligation = strings.ToLower(strings.TrimSpace(obligation))
	if obligation == "" {
		obligation = DefaultRetentionObligation
	}
	if obligation == "disabled" {
		e.enabled = false
		return e, nil
	}

	parts := strings.Split(obligation, ",")
	if len(parts) > 2 {
		return nil, fmt.Errorf("retention obligation %q has more than two values", obligation)
	}
	minValue := strings.TrimSpace(parts[0])
	maxValue := "auto"
	if len(parts) == 2 {
		maxValue = strings.TrimSpace(parts[1])
	}

	minDays, err := parseDays(minValue)
	if err != nil {
		return nil, err
	}
	maxDays, err := parseDays(maxValue)
	if err != nil {
		return nil, err
	}

	switch {
	case minDays == noObligation && maxDays == noObligation:
		e.minAge = defaultMinAgeDays
		e.maxAge = noObligation
		e.canPurgeToSaveSpace = true
	case maxDays == noObligation:
		e.minAge = minDays
		e.maxAge = noObligation
		e.canPurgeToSaveSpace = true
	case minDays == noObligation:
		e.minAge = noObligation
		e.maxAge = maxDays
		e.canPurgeToSaveSpace = true
	default:
		if maxDays < minDays {
			maxDays = minDays
		}
		e.minAge = minDays
		e.maxAge = maxDays
		e.canPurgeToSaveSpace = false
	}
	return e, nil
}

// parseDays returns noObligation for "auto".
func parseDays(value string) (int, error) {
	if value == "auto" {
		return noObligation, nil
	}
	days, err := strconv.Atoi(value)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("retention value %q is neither auto nor a number of days", value)
	}
	return days, nil
}

func (e *Expiration) Enabled() bool {
	return e.enabled
}

// IsExpired reports whether an item deleted at deletedAt may be purged.
// Timestamps in the future never expire.
func (e *Expiration) IsExpired(deletedAt time.Time, quotaExceeded bool) bool {
	if !e.enabled {
		return false
	}
	if quotaExceeded && e.canPurgeToSaveSpace {
		return true
	}

	now := e.now()
	if now.Before(deletedAt) {
		return false
	}

	olderThanMax := false
	if e.maxAge != noObligation {
		olderThanMax = deletedAt.Before(now.Add(-days(e.maxAge)))
	}

	minReached := false
	if e.minAge != noObligation {
		minReached = quotaExceeded && deletedAt.Before(now.Add(-days(e.minAge)))
	}

	return olderThanMax || minReached
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
