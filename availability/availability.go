// Package availability matches dates and times against an experience's weekly rules.
package availability

import (
	"time"

	"experience-backend/models"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ValidTime reports whether s is a HH:MM clock time.
func ValidTime(s string) bool {
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}

// IsDateAvailable reports whether at least one rule opens the given date.
// No rules means no restriction.
func IsDateAvailable(date time.Time, rules []models.AvailabilityRule) bool {
	if len(rules) == 0 {
		return true
	}
	for _, r := range rules {
		if matchesDate(r, date) {
			return true
		}
	}
	return false
}

// IsTimeAvailable reports whether a rule opens the date and its hours include hhmm.
func IsTimeAvailable(date time.Time, hhmm string, rules []models.AvailabilityRule) bool {
	if len(rules) == 0 {
		return true
	}
	for _, r := range rules {
		if matchesDate(r, date) && r.StartTime <= hhmm && hhmm <= r.EndTime {
			return true
		}
	}
	return false
}

// OperatingHours returns the hours of the first rule matching date.
func OperatingHours(date time.Time, rules []models.AvailabilityRule) (start, end string, ok bool) {
	for _, r := range rules {
		if matchesDate(r, date) {
			return r.StartTime, r.EndTime, true
		}
	}
	return "", "", false
}

func matchesDate(r models.AvailabilityRule, date time.Time) bool {
	return matchesWeekday(r.Weekdays, date.Weekday()) && InSeason(date.Format("01-02"), r.SeasonFrom, r.SeasonUntil)
}

func matchesWeekday(weekdays []int, wd time.Weekday) bool {
	for _, d := range weekdays {
		if time.Weekday(d) == wd {
			return true
		}
	}
	return false
}

// InSeason compares MM-DD strings. A from after until wraps the year boundary.
func InSeason(mmdd string, from, until *string) bool {
	switch {
	case from == nil && until == nil:
		return true
	case until == nil:
		return mmdd >= *from
	case from == nil:
		return mmdd <= *until
	case *from <= *until:
		return *from <= mmdd && mmdd <= *until
	default:
		return mmdd >= *from || mmdd <= *until
	}
}
