// Package transform turns raw portal payloads into per-weekday structures and
// the normalized homework week stored in the cache.
package transform

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
)

const dateLayout = "2006-01-02"

// Split holds entries bucketed by the weekday of their own date. Days is keyed
// by weekday name and keeps the source order within each day.
type Split[T any] struct {
	Window calendar.Window
	Days   map[string][]T
}

// Day returns the entries for the given ISO weekday (1..5).
func (s Split[T]) Day(isoWeekday int) []T {
	name, err := calendar.WeekdayName(isoWeekday)
	if err != nil {
		return nil
	}
	return s.Days[name]
}

// SplitByWeekday buckets entries by the date dateOf extracts from each one.
// Entries dated on a weekend are skipped. A date that cannot be parsed makes
// the whole payload malformed.
func SplitByWeekday[T any](window calendar.Window, entries []T, dateOf func(T) string, logger *slog.Logger) (Split[T], error) {
	if logger == nil {
		logger = slog.Default()
	}

	split := Split[T]{
		Window: window,
		Days:   make(map[string][]T, calendar.SchoolDays),
	}
	for _, name := range calendar.SchoolDayNames() {
		split.Days[name] = nil
	}

	for i, entry := range entries {
		raw := dateOf(entry)
		day, err := parseDate(raw, window.Start.Location())
		if err != nil {
			return Split[T]{}, &domain.ServerError{Err: fmt.Errorf("entry %d: %w", i, err)}
		}

		wd := calendar.ISOWeekday(day)
		if wd > calendar.SchoolDays {
			logger.Debug("Skipping weekend entry", "date", raw)
			continue
		}
		name, err := calendar.WeekdayName(wd)
		if err != nil {
			return Split[T]{}, err
		}
		split.Days[name] = append(split.Days[name], entry)
	}

	return split, nil
}

// parseDate accepts a plain date or a timestamp whose first ten characters
// are a date.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if len(raw) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("parse date %q: too short", raw)
	}
	d, err := time.ParseInLocation(dateLayout, raw[:len(dateLayout)], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return d, nil
}
