package transform

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/portal"
)

// notAssigned is the portal's marker for a lesson without homework.
const notAssigned = "не задано"

var subjectAliases = map[string]string{
	"Труд (технология)": "Технология",
	"Музыка":            "МХК",
}

// SplitHomework buckets a raw homework payload by weekday.
func SplitHomework(raw *portal.HomeworkResponse, logger *slog.Logger) (Split[portal.HomeworkEntry], error) {
	window := calendar.Window{Start: raw.WindowStart, End: raw.WindowEnd}
	return SplitByWeekday(window, raw.Payload, func(e portal.HomeworkEntry) string { return e.Date }, logger)
}

// BuildHomeworkWeek produces the five ordered study days of split, renaming
// aliased subjects and dropping lessons that carry nothing.
func BuildHomeworkWeek(split Split[LinkedEntry]) *domain.HomeworkWeek {
	names := calendar.SchoolDayNames()
	week := &domain.HomeworkWeek{
		WindowStart: split.Window.Start,
		WindowEnd:   split.Window.End,
		Days:        make([]domain.StudyDay, len(names)),
	}

	for i, name := range names {
		day := domain.StudyDay{
			Name:    name,
			Date:    split.Window.Start.AddDate(0, 0, i),
			Lessons: []domain.Lesson{},
		}
		for _, e := range split.Days[name] {
			text := CleanText(e.Homework)
			if isPlaceholder(text) && len(e.Links) == 0 {
				continue
			}
			day.Lessons = append(day.Lessons, domain.Lesson{
				Subject:  SubjectName(e.SubjectName),
				Homework: text,
				Links:    e.Links,
			})
		}
		week.Days[i] = day
	}

	return week
}

// Homework runs the whole pipeline for a raw homework payload.
func Homework(raw *portal.HomeworkResponse, logger *slog.Logger) (*domain.HomeworkWeek, error) {
	split, err := SplitHomework(raw, logger)
	if err != nil {
		return nil, err
	}
	return BuildHomeworkWeek(AttachLinks(split, logger)), nil
}

// SubjectName applies the known subject renames.
func SubjectName(name string) string {
	name = strings.TrimSpace(name)
	if alias, ok := subjectAliases[name]; ok {
		return alias
	}
	return name
}

func isPlaceholder(text string) bool {
	return text == "" || text == "." || strings.Contains(strings.ToLower(text), notAssigned)
}

// CleanText reduces an HTML fragment to plain text, one line per block.
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").AppendHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
