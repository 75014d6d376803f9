package transform

import (
	"log/slog"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/portal"
)

// Mark is a single grade.
type Mark struct {
	Subject string
	Value   string
}

// MarksWeek is the marks of one window by weekday name. NoData is set, and
// Days left nil, when the portal returned no marks at all for the window.
type MarksWeek struct {
	Window calendar.Window
	Days   map[string][]Mark
	NoData bool
}

// Today returns the marks for the ISO weekday of the given day.
func (m *MarksWeek) Today(isoWeekday int) []Mark {
	if m.NoData {
		return nil
	}
	name, err := calendar.WeekdayName(isoWeekday)
	if err != nil {
		return nil
	}
	return m.Days[name]
}

// Marks buckets a raw marks payload by weekday.
func Marks(raw *portal.MarksResponse, logger *slog.Logger) (*MarksWeek, error) {
	window := calendar.Window{Start: raw.WindowStart, End: raw.WindowEnd}
	if len(raw.Payload) == 0 {
		return &MarksWeek{Window: window, NoData: true}, nil
	}

	split, err := SplitByWeekday(window, raw.Payload, func(e portal.MarkEntry) string { return e.Date }, logger)
	if err != nil {
		return nil, err
	}

	week := &MarksWeek{Window: window, Days: make(map[string][]Mark, len(split.Days))}
	for day, entries := range split.Days {
		marks := make([]Mark, 0, len(entries))
		for _, e := range entries {
			if e.Value == "" {
				continue
			}
			marks = append(marks, Mark{Subject: SubjectName(e.SubjectName), Value: string(e.Value)})
		}
		week.Days[day] = marks
	}
	return week, nil
}
