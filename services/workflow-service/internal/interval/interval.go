// Package interval holds the time math behind availability validation.
// Windows and appointment requests are half-open [start,end) intervals
// anchored to a calendar date; an end clock at or before the start clock
// means the interval runs past midnight into the next day.
package interval

import (
	"fmt"
	"time"
)

// TimeOfDay is minutes since midnight, 0..1439.
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseClock parses an "HH:MM" wall-clock string.
func ParseClock(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Minutes() int {
	return int(t)
}

// Span is a pair of absolute instants, half-open.
type Span struct {
	Start time.Time
	End   time.Time
}

// Normalize anchors a (start,end) clock pair to date. When end <= start the
// span crosses midnight and the end lands on the following day.
func Normalize(date time.Time, start, end TimeOfDay) Span {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	s := day.Add(time.Duration(start) * time.Minute)
	e := day.Add(time.Duration(end) * time.Minute)
	if end <= start {
		e = e.Add(minutesPerDay * time.Minute)
	}
	return Span{Start: s, End: e}
}

// Overlaps reports whether two half-open spans intersect:
// [a.Start,a.End) overlaps [b.Start,b.End) iff a.Start < b.End && b.Start < a.End.
func (a Span) Overlaps(b Span) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether b lies entirely within a.
func (a Span) Contains(b Span) bool {
	return !b.Start.Before(a.Start) && !b.End.After(a.End)
}

// CrossesMidnight reports whether the (start,end) clock pair spans into the
// next calendar day.
func CrossesMidnight(start, end TimeOfDay) bool {
	return end <= start
}
