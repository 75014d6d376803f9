// Package domain contains core domain types for the school bot.
package domain

import (
	"time"
)

// Preferences controls how data is rendered for a user.
type Preferences struct {
	DeliverWeekly bool `json:"deliver_weekly"`
	Notify        bool `json:"notify"`
	HideLinks     bool `json:"hide_links"`
}

// DefaultPreferences returns the settings a new user starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		DeliverWeekly: false,
		Notify:        true,
		HideLinks:     true,
	}
}

// User represents a Telegram user and their portal credentials.
type User struct {
	ID          int64       `json:"user_id"`
	Username    string      `json:"username"`
	Token       string      `json:"-"`
	StudentID   int64       `json:"student_id,omitempty"`
	Preferences Preferences `json:"preferences"`
	Debug       bool        `json:"debug"`
	HomeworkID  int64       `json:"homework_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// HasToken returns true if both the portal token and the student id are known.
func (u *User) HasToken() bool {
	return u.Token != "" && u.StudentID != 0
}
