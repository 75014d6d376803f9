package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/transform"
)

// maxSeparatorWidth keeps the separator line from wrapping on phones.
const maxSeparatorWidth = 33

const dayMonth = "02.01"

// markdownSpecial are the characters legacy Markdown treats as markup.
const markdownSpecial = "_*`["

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// entity wraps s in marker ("_" or "*"). Escapes are not allowed inside an
// entity, so the entity is closed before every special character, which is
// escaped outside it, and reopened after.
func entity(marker, s string) string {
	var b, seg strings.Builder
	flush := func() {
		if seg.Len() > 0 {
			b.WriteString(marker + seg.String() + marker)
			seg.Reset()
		}
	}
	for _, r := range s {
		if strings.ContainsRune(markdownSpecial, r) {
			flush()
			b.WriteString(`\` + string(r))
			continue
		}
		seg.WriteRune(r)
	}
	flush()
	return b.String()
}

// linkTitle drops characters that would end or nest inside the link text.
func linkTitle(s string) string {
	title := strings.Map(func(r rune) rune {
		if strings.ContainsRune(markdownSpecial+"]", r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(title), " ")
}

// separator returns a dash line as wide as the longest line of text, capped
// at maxSeparatorWidth.
func separator(text string) string {
	width := 0
	for _, line := range strings.Split(text, "\n") {
		if n := utf8.RuneCountInString(line); n > width {
			width = n
		}
	}
	return strings.Repeat("-", min(width, maxSeparatorWidth))
}

// treeLines prefixes items with box-drawing branches, the last one closed.
func treeLines(items []string) string {
	var b strings.Builder
	for i, item := range items {
		branch := "├"
		if i == len(items)-1 {
			branch = "└"
		}
		fmt.Fprintf(&b, "\t%s %s", branch, item)
		if i < len(items)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatLinks(links []domain.LinkInfo, hide bool) string {
	parts := make([]string, 0, len(links))
	for _, link := range links {
		if hide {
			parts = append(parts, fmt.Sprintf("[%s](%s)", linkTitle(link.Title), strings.ReplaceAll(link.URL, ")", "%29")))
		} else {
			parts = append(parts, escape(link.URL))
		}
	}
	return strings.Join(parts, "\n\t\t\t")
}

// FormatHomeworkDay renders one day of homework.
func FormatHomeworkDay(day domain.StudyDay, hideLinks bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Домашка на %s (%s)*:\n", day.Name, day.Date.Format(dayMonth))

	for _, lesson := range day.Lessons {
		b.WriteString(entity("*", "• "+lesson.Subject+":") + "\n")

		var lines []string
		if lesson.Homework != "" {
			lines = append(lines, entity("_", lesson.Homework))
		}
		if len(lesson.Links) > 0 {
			lines = append(lines, formatLinks(lesson.Links, hideLinks))
		}
		b.WriteString(treeLines(lines))
		b.WriteString("\n")
	}

	out := b.String()
	return out + separator(out) + fmt.Sprintf("\nВсего задано уроков: %d", len(day.Lessons))
}

// FormatHomework renders the whole week, or only the day of isoWeekday when
// weekly is false.
func FormatHomework(week *domain.HomeworkWeek, weekly, hideLinks bool, isoWeekday int) string {
	if !weekly {
		day := week.Day(isoWeekday)
		if day == nil {
			day = week.Day(1)
		}
		if day == nil {
			return "Домашнее задание не найдено"
		}
		return FormatHomeworkDay(*day, hideLinks)
	}

	parts := make([]string, 0, len(week.Days))
	for _, day := range week.Days {
		parts = append(parts, FormatHomeworkDay(day, hideLinks))
	}
	return strings.Join(parts, "\n\n\n")
}

func formatMarkList(marks []transform.Mark) string {
	items := make([]string, 0, len(marks))
	for _, m := range marks {
		items = append(items, fmt.Sprintf("%s: %s", entity("*", m.Subject), escape(m.Value)))
	}
	return treeLines(items)
}

// FormatMarks renders marks for the week, or for the day of isoWeekday when
// weekly is false. An empty week and an empty day produce different text.
func FormatMarks(marks *transform.MarksWeek, weekly bool, isoWeekday int) string {
	var b strings.Builder

	if weekly {
		fmt.Fprintf(&b, "*Оценки за неделю (%s - %s):*\n",
			marks.Window.Start.Format(dayMonth), marks.Window.End.Format(dayMonth))
		if marks.NoData {
			b.WriteString("\t└ Оценки за этот период отсутствуют")
			return b.String()
		}
		for _, name := range calendar.SchoolDayNames() {
			day := marks.Days[name]
			if len(day) == 0 {
				continue
			}
			fmt.Fprintf(&b, "*%s:*\n%s\n\n", name, formatMarkList(day))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if isoWeekday > calendar.SchoolDays {
		isoWeekday = calendar.SchoolDays
	}
	name, err := calendar.WeekdayName(isoWeekday)
	if err != nil {
		name = ""
	}
	date := marks.Window.Start.AddDate(0, 0, isoWeekday-1)
	fmt.Fprintf(&b, "*Оценки за сегодняшний день (%s, %s):*\n", name, date.Format(dayMonth))

	switch today := marks.Today(isoWeekday); {
	case marks.NoData:
		b.WriteString("\t└ Оценки за эту неделю отсутствуют")
	case len(today) == 0:
		b.WriteString("\t└ Оценки за сегодняшний день отсутствуют")
	default:
		b.WriteString(formatMarkList(today))
	}
	return b.String()
}

func formatLessons(items []transform.ScheduleItem) string {
	if len(items) == 0 {
		return "\t└ Уроков нет"
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := escape(item.Subject)
		if item.Room != "" {
			line += " (" + escape(item.Room) + ")"
		}
		lines = append(lines, line)
	}
	return treeLines(lines)
}

// FormatSchedule renders the timetable of the whole week or of the target
// day only.
func FormatSchedule(s *transform.ScheduleWeek, weekly bool) string {
	var b strings.Builder

	if weekly {
		fmt.Fprintf(&b, "*Расписание на неделю (%s - %s):*",
			s.Window.Start.Format(dayMonth), s.Window.End.Format(dayMonth))
		for _, name := range calendar.SchoolDayNames() {
			fmt.Fprintf(&b, "\n\n*%s:*\n%s", name, formatLessons(s.Days[name]))
		}
		out := b.String()
		return fmt.Sprintf("%s\n%s\nВсего уроков: %d\n", out, separator(out), s.TotalCount)
	}

	name, _ := calendar.WeekdayName(calendar.ISOWeekday(s.Target))
	day := s.TargetDay()
	fmt.Fprintf(&b, "*Расписание на %s (%s):*\n%s", name, s.Target.Format(dayMonth), formatLessons(day))
	out := b.String()
	return fmt.Sprintf("%s\n%s\nВсего уроков: %d\n", out, separator(out), len(day))
}

// FormatUsers renders the admin user list.
func FormatUsers(users []*domain.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Пользователей: %d\n", len(users))
	for _, u := range users {
		token := "нет"
		if u.HasToken() {
			token = "есть"
		}
		name := u.Username
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&b, "\n• %d @%s (токен: %s)", u.ID, name, token)
	}
	return b.String()
}
