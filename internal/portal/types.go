package portal

import (
	"bytes"
	"encoding/json"
	"time"
)

// HomeworkResponse is the raw weekly homework payload.
type HomeworkResponse struct {
	Payload []HomeworkEntry `json:"payload"`

	StudentID   int64     `json:"-"`
	WindowStart time.Time `json:"-"`
	WindowEnd   time.Time `json:"-"`
}

// HomeworkEntry is one lesson's homework as the portal returns it.
type HomeworkEntry struct {
	Date                string     `json:"date"`
	SubjectName         string     `json:"subject_name"`
	Homework            string     `json:"homework"`
	AdditionalMaterials []Material `json:"additional_materials"`
}

// Material groups attached items of one kind.
type Material struct {
	Type  string         `json:"type"`
	Items []MaterialItem `json:"items"`
}

// MaterialItem is a single attachment. Documents carry Link directly; other
// kinds only expose a list of URLs.
type MaterialItem struct {
	Title string        `json:"title"`
	Link  string        `json:"link"`
	URLs  []MaterialURL `json:"urls"`
}

// MaterialURL is one entry of a material's urls list.
type MaterialURL struct {
	URL     string `json:"url"`
	URLType string `json:"url_type"`
}

// MarksResponse is the raw weekly marks payload.
type MarksResponse struct {
	Payload []MarkEntry `json:"payload"`

	WindowStart time.Time `json:"-"`
	WindowEnd   time.Time `json:"-"`
}

// MarkEntry is one mark.
type MarkEntry struct {
	Date        string    `json:"date"`
	SubjectName string    `json:"subject_name"`
	Value       MarkValue `json:"value"`
}

// MarkValue accepts both "5" and 5 from the portal.
type MarkValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *MarkValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = MarkValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = MarkValue(n.String())
	return nil
}

// ScheduleResponse is the raw event calendar payload.
type ScheduleResponse struct {
	Response   []ScheduleEvent `json:"response"`
	TotalCount int             `json:"total_count"`

	Target      time.Time `json:"-"`
	WindowStart time.Time `json:"-"`
	WindowEnd   time.Time `json:"-"`
}

// ScheduleEvent is one lesson of the schedule.
type ScheduleEvent struct {
	StartAt     string `json:"start_at"`
	FinishAt    string `json:"finish_at"`
	SubjectName string `json:"subject_name"`
	RoomNumber  string `json:"room_number"`
}

type profileInfo struct {
	ID int64 `json:"id"`
}

type sessionInfo struct {
	PersonID string `json:"person_id"`
}
