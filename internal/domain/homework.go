package domain

import (
	"time"
)

// LinkInfo is a supplementary material attached to a lesson.
type LinkInfo struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Lesson is one subject's homework for a day.
type Lesson struct {
	Subject  string     `json:"subject"`
	Homework string     `json:"homework"`
	Links    []LinkInfo `json:"links"`
}

// StudyDay is one weekday's bucket of lessons.
type StudyDay struct {
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
	Lessons []Lesson  `json:"lessons"`
}

// HomeworkWeek is the normalized homework for one Monday–Friday window.
// Days always holds exactly five entries, Monday first.
type HomeworkWeek struct {
	ID          int64      `json:"-"`
	OwnerID     int64      `json:"-"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	FetchedAt   time.Time  `json:"-"`
	Days        []StudyDay `json:"days"`
}

// Day returns the study day for the given ISO weekday (1..5), or nil.
func (w *HomeworkWeek) Day(isoWeekday int) *StudyDay {
	if isoWeekday < 1 || isoWeekday > len(w.Days) {
		return nil
	}
	return &w.Days[isoWeekday-1]
}

// LessonCount returns the total number of lessons across the week.
func (w *HomeworkWeek) LessonCount() int {
	n := 0
	for _, d := range w.Days {
		n += len(d.Lessons)
	}
	return n
}
