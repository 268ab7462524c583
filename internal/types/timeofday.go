package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date or zone, parsed from the
// "HH:MM" strings used for posting window bounds.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" string (24-hour clock). Returns a
// validation AppError on malformed input.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, NewAppError(ErrCodeValidationInvalidTimeOfDay,
			fmt.Sprintf("time of day %q is not in HH:MM format", s), nil)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, NewAppError(ErrCodeValidationInvalidTimeOfDay,
			fmt.Sprintf("time of day %q has an invalid hour", s), err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, NewAppError(ErrCodeValidationInvalidTimeOfDay,
			fmt.Sprintf("time of day %q has an invalid minute", s), err)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String renders the time of day back to "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On resolves the time of day to an absolute UTC instant on date's civil
// calendar day in the given location. The day is read from date's own
// representation, never re-derived from the instant in loc: a date-only value
// encoded as UTC midnight keeps its calendar day even in zones where that
// instant falls on the previous local day. DST transitions are handled by the
// location rules, not by fixed offsets: time.Date normalizes nonexistent
// local times forward across a spring gap.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc).UTC()
}

// StartOfDay returns midnight of date's calendar day in loc, as a UTC instant.
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	return TimeOfDay{}.On(date, loc)
}

// EndOfDay returns midnight of the day after date's calendar day in loc, as a
// UTC instant. Paired with StartOfDay it bounds a calendar day as a half-open
// range.
func EndOfDay(date time.Time, loc *time.Location) time.Time {
	return TimeOfDay{}.On(date.AddDate(0, 0, 1), loc)
}
