// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesbot/mesbot/internal/domain"
)

// ErrUserNotFound is returned by writes that require an existing user row.
var ErrUserNotFound = errors.New("user not found")

// Repository defines the interface for persisting users and cached homework.
type Repository interface {
	// GetUser retrieves a user by their Telegram ID. It returns nil, nil
	// when the user does not exist.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// UpsertUser creates or updates a user record. The homework reference is
	// owned by SaveHomework and is never changed here.
	UpsertUser(ctx context.Context, user *domain.User) error

	// DeleteUser removes a user and garbage-collects the homework row they
	// referenced when no other user still points at it.
	DeleteUser(ctx context.Context, userID int64) error

	// ListUsers returns all users ordered by registration time.
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// GetHomework returns the homework week the user currently references,
	// or nil, nil when there is none.
	GetHomework(ctx context.Context, userID int64) (*domain.HomeworkWeek, error)

	// SaveHomework stores week for the user, reusing an existing row when
	// the content is identical, and returns the row id.
	SaveHomework(ctx context.Context, userID int64, week *domain.HomeworkWeek, fetchedAt time.Time) (int64, error)

	// PruneHomework deletes homework rows fetched before olderThan.
	PruneHomework(ctx context.Context, olderThan time.Time) (int64, error)

	// Backup writes a consistent copy of the database to path.
	Backup(ctx context.Context, path string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// weekContent is the part of a homework week that identifies it.
type weekContent struct {
	WindowStart string            `json:"window_start"`
	WindowEnd   string            `json:"window_end"`
	Days        []domain.StudyDay `json:"days"`
}

// EncodeWeek serializes the normalized content of week and returns it with
// its SHA-256 hash. Two weeks with the same window and lessons always encode
// to the same bytes.
func EncodeWeek(week *domain.HomeworkWeek) ([]byte, string, error) {
	content := weekContent{
		WindowStart: week.WindowStart.Format(time.DateOnly),
		WindowEnd:   week.WindowEnd.Format(time.DateOnly),
		Days:        make([]domain.StudyDay, len(week.Days)),
	}
	for i, d := range week.Days {
		d.Date = time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(), 0, 0, 0, 0, time.UTC)
		content.Days[i] = d
	}

	data, err := json.Marshal(content)
	if err != nil {
		return nil, "", fmt.Errorf("marshal homework week: %w", err)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// DecodeWeek restores a homework week from EncodeWeek output.
func DecodeWeek(data []byte, loc *time.Location) (*domain.HomeworkWeek, error) {
	var content weekContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("unmarshal homework week: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	start, err := time.ParseInLocation(time.DateOnly, content.WindowStart, loc)
	if err != nil {
		return nil, fmt.Errorf("parse window start: %w", err)
	}
	end, err := time.ParseInLocation(time.DateOnly, content.WindowEnd, loc)
	if err != nil {
		return nil, fmt.Errorf("parse window end: %w", err)
	}

	week := &domain.HomeworkWeek{WindowStart: start, WindowEnd: end, Days: content.Days}
	for i := range week.Days {
		d := week.Days[i].Date
		week.Days[i].Date = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		if week.Days[i].Lessons == nil {
			week.Days[i].Lessons = []domain.Lesson{}
		}
	}
	return week, nil
}
