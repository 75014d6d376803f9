// Package export renders homework and schedules as iCalendar files.
package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/transform"
)

const productID = "-//mesbot//homework//RU"

func newCalendar(name string) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)
	return cal
}

// HomeworkFileName returns the attachment name for a week.
func HomeworkFileName(week *domain.HomeworkWeek) string {
	return fmt.Sprintf("homework-%s.ics", week.WindowStart.Format(time.DateOnly))
}

// Homework renders one all-day event per lesson of week.
func Homework(week *domain.HomeworkWeek, stamp time.Time) string {
	cal := newCalendar("Домашнее задание")

	for _, day := range week.Days {
		for i, lesson := range day.Lessons {
			uid := fmt.Sprintf("%d-%s-%d@mesbot", week.OwnerID, day.Date.Format("20060102"), i)
			event := cal.AddEvent(uid)
			event.SetDtStampTime(stamp)
			if !week.FetchedAt.IsZero() {
				event.SetModifiedAt(week.FetchedAt)
			}
			event.SetAllDayStartAt(day.Date)
			event.SetAllDayEndAt(day.Date.AddDate(0, 0, 1))
			event.SetSummary(lesson.Subject)
			event.SetDescription(describe(lesson))
			if len(lesson.Links) > 0 {
				event.SetURL(lesson.Links[0].URL)
			}
		}
	}

	return cal.Serialize()
}

func describe(lesson domain.Lesson) string {
	var b strings.Builder
	b.WriteString(lesson.Homework)
	for _, link := range lesson.Links {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", link.Title, link.URL)
	}
	return b.String()
}

// ScheduleFileName returns the attachment name for the schedule of a day.
func ScheduleFileName(week *transform.ScheduleWeek) string {
	return fmt.Sprintf("schedule-%s.ics", week.Target.Format(time.DateOnly))
}

// Schedule renders the lessons of the schedule's target day as timed events.
func Schedule(ownerID int64, week *transform.ScheduleWeek, stamp time.Time) string {
	cal := newCalendar("Расписание")

	for i, item := range week.TargetDay() {
		if item.Start.IsZero() || item.Finish.IsZero() {
			continue
		}
		uid := fmt.Sprintf("%d-%s-lesson-%d@mesbot", ownerID, item.Start.Format("20060102"), i)
		event := cal.AddEvent(uid)
		event.SetDtStampTime(stamp)
		event.SetStartAt(item.Start)
		event.SetEndAt(item.Finish)
		event.SetSummary(item.Subject)
		if item.Room != "" {
			event.SetLocation(item.Room)
		}
	}

	return cal.Serialize()
}
