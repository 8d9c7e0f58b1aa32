package policy

import (
	"fmt"
	"time"
)

// DefaultRetentionDays is the base retention window when none is configured.
const DefaultRetentionDays = 3

// weekendAllowanceDays widens the window on the run that follows the weekend,
// so that Friday's backups are not gone after only two working days.
const weekendAllowanceDays = 2

// RetentionPolicy decides when a managed snapshot becomes eligible for deletion.
type RetentionPolicy struct {
	BaseDays int
}

// Normalize validates the configured window. Zero keeps only today's backups.
func (p *RetentionPolicy) Normalize() error {
	if p.BaseDays < 0 {
		return fmt.Errorf("retention days must not be negative; got %d", p.BaseDays)
	}
	return nil
}

// EffectiveDays returns the window in force for the given run date.
func (p RetentionPolicy) EffectiveDays(today time.Time) int {
	return EffectiveRetentionDays(today, p.BaseDays)
}

// Cutoff returns the last calendar date whose snapshots may be deleted.
func (p RetentionPolicy) Cutoff(today time.Time) time.Time {
	return CutoffDate(today, p.EffectiveDays(today))
}

// EffectiveRetentionDays returns baseDays, extended by two days when today is a Tuesday.
func EffectiveRetentionDays(today time.Time, baseDays int) int {
	if today.Weekday() == time.Tuesday {
		return baseDays + weekendAllowanceDays
	}
	return baseDays
}

// CutoffDate returns the calendar date effectiveDays before today, at midnight UTC.
// Snapshots created on or before this date are eligible for deletion.
func CutoffDate(today time.Time, effectiveDays int) time.Time {
	return Today(today).AddDate(0, 0, -effectiveDays)
}

// Today truncates t to its calendar date, expressed at midnight UTC.
// The date is taken in t's own location.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
