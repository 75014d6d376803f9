// Package calendar provides the weekday table and Monday-anchored week windows
// used to query the school portal.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWeekday is returned for weekday numbers outside 1..7.
var ErrInvalidWeekday = errors.New("invalid weekday number")

// SchoolDays is the number of instructional days in a window.
const SchoolDays = 5

var weekdayNames = [7]string{
	"Понедельник",
	"Вторник",
	"Среда",
	"Четверг",
	"Пятница",
	"Суббота",
	"Воскресенье",
}

// Window is a Monday–Friday date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the five dates of the window, Monday first.
func (w Window) Days() []time.Time {
	days := make([]time.Time, SchoolDays)
	for i := range days {
		days[i] = w.Start.AddDate(0, 0, i)
	}
	return days
}

// Contains reports whether t falls on one of the window's dates.
func (w Window) Contains(t time.Time) bool {
	d := Today(t.In(w.Start.Location()))
	return !d.Before(w.Start) && !d.After(w.End)
}

// WeekdayName returns the Russian name for an ISO weekday number (1 = Monday).
func WeekdayName(n int) (string, error) {
	if n < 1 || n > 7 {
		return "", fmt.Errorf("%w: %d", ErrInvalidWeekday, n)
	}
	return weekdayNames[n-1], nil
}

// AllWeekdayNames returns all seven names, Monday first.
func AllWeekdayNames() []string {
	names := make([]string, len(weekdayNames))
	copy(names, weekdayNames[:])
	return names
}

// SchoolDayNames returns the Monday–Friday names.
func SchoolDayNames() []string {
	return AllWeekdayNames()[:SchoolDays]
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Today truncates t to midnight in its own location.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MondayOf returns the Monday of t's week for Monday–Friday, and the following
// Monday for Saturday and Sunday.
func MondayOf(t time.Time) time.Time {
	day := Today(t)
	d := ISOWeekday(day)
	if d <= SchoolDays {
		return day.AddDate(0, 0, -(d - 1))
	}
	return day.AddDate(0, 0, 8-d)
}

// WeekOf returns the instructional window for t.
func WeekOf(t time.Time) Window {
	start := MondayOf(t)
	return Window{Start: start, End: start.AddDate(0, 0, SchoolDays-1)}
}

// PreviousWeekOf returns the window one calendar week before WeekOf(t).
func PreviousWeekOf(t time.Time) Window {
	start := MondayOf(t).AddDate(0, 0, -7)
	return Window{Start: start, End: start.AddDate(0, 0, SchoolDays-1)}
}

// NextSchoolDay returns tomorrow, or the next Monday when t is Friday,
// Saturday or Sunday.
func NextSchoolDay(t time.Time) time.Time {
	day := Today(t)
	if ISOWeekday(day) >= SchoolDays {
		return MondayOf(day.AddDate(0, 0, 1))
	}
	return day.AddDate(0, 0, 1)
}

// LastSchoolDay returns t's date, or the preceding Friday when t falls on
// Saturday or Sunday.
func LastSchoolDay(t time.Time) time.Time {
	day := Today(t)
	if d := ISOWeekday(day); d > SchoolDays {
		return day.AddDate(0, 0, SchoolDays-d)
	}
	return day
}
