package classifier

import (
	"time"

	"github.com/t77yq/duewatch/internal/model"
)

// renewalWindowDays is how close to expiry a license may be renewed
const renewalWindowDays = 180

// DaysUntil returns the signed number of calendar days from reference to target.
// Both sides are reduced to their UTC calendar date before subtracting, so the
// time-of-day of reference never shifts the result. ok is false when target is absent.
func DaysUntil(reference time.Time, target *model.Date) (days int, ok bool) {
	if target == nil || target.IsZero() {
		return 0, false
	}
	today := model.NewDate(reference).Midnight()
	due := target.Midnight()
	return int(due.Sub(today).Hours() / 24), true
}

// IsExpired reports whether a known offset lies in the past
func IsExpired(days int, ok bool) bool {
	return ok && days < 0
}

// IsDueWithin reports whether a known offset falls inside [0, window]
func IsDueWithin(days int, ok bool, window int) bool {
	return ok && days >= 0 && days <= window
}

// EligibleForRenewal reports whether a license may enter the renewal workflow
func EligibleForRenewal(days int, ok bool) bool {
	return ok && days <= renewalWindowDays
}
