package transform

import (
	"log/slog"
	"time"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/portal"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ScheduleItem is one lesson of the timetable.
type ScheduleItem struct {
	Subject string
	Room    string
	Start   time.Time
	Finish  time.Time
}

// ScheduleWeek is the timetable of one window. Target is the school day the
// schedule was requested for.
type ScheduleWeek struct {
	Window     calendar.Window
	Target     time.Time
	TotalCount int
	Days       map[string][]ScheduleItem
}

// TargetDay returns the lessons of the target day.
func (s *ScheduleWeek) TargetDay() []ScheduleItem {
	name, err := calendar.WeekdayName(calendar.ISOWeekday(s.Target))
	if err != nil {
		return nil
	}
	return s.Days[name]
}

// Schedule buckets a raw schedule payload by weekday.
func Schedule(raw *portal.ScheduleResponse, logger *slog.Logger) (*ScheduleWeek, error) {
	window := calendar.Window{Start: raw.WindowStart, End: raw.WindowEnd}
	split, err := SplitByWeekday(window, raw.Response, func(e portal.ScheduleEvent) string { return e.StartAt }, logger)
	if err != nil {
		return nil, err
	}

	loc := window.Start.Location()
	week := &ScheduleWeek{
		Window:     window,
		Target:     raw.Target,
		TotalCount: raw.TotalCount,
		Days:       make(map[string][]ScheduleItem, len(split.Days)),
	}
	for day, events := range split.Days {
		items := make([]ScheduleItem, 0, len(events))
		for _, e := range events {
			items = append(items, ScheduleItem{
				Subject: SubjectName(e.SubjectName),
				Room:    e.RoomNumber,
				Start:   parseTimestamp(e.StartAt, loc),
				Finish:  parseTimestamp(e.FinishAt, loc),
			})
		}
		week.Days[day] = items
	}
	return week, nil
}

// parseTimestamp returns the zero time when raw matches no known layout.
func parseTimestamp(raw string, loc *time.Location) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.In(loc)
		}
	}
	return time.Time{}
}
