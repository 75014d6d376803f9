// Package session holds per-user state and is the entry point chat handlers
// use to fetch homework, marks and the schedule.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/portal"
	"github.com/mesbot/mesbot/internal/transform"
)

// tokenPrefix starts every portal token (a JWT with a JSON header).
const tokenPrefix = "eyJhb"

// ErrInvalidToken is returned by SetToken for text that cannot be a token.
var ErrInvalidToken = errors.New("invalid portal token")

// Portal is the subset of the portal client sessions use.
type Portal interface {
	FetchHomework(ctx context.Context, token string, studentID int64, date time.Time) (*portal.HomeworkResponse, error)
	FetchMarks(ctx context.Context, token string, studentID int64, date time.Time) (*portal.MarksResponse, error)
	FetchSchedule(ctx context.Context, token, personID string, now time.Time) (*portal.ScheduleResponse, error)
	ResolveStudentID(ctx context.Context, token string) (int64, error)
	ResolvePersonID(ctx context.Context, token string) (string, error)
}

// Cache is the homework cache sessions read through.
type Cache interface {
	Lookup(ctx context.Context, userID int64) (*domain.HomeworkWeek, error)
	Store(ctx context.Context, userID int64, week *domain.HomeworkWeek) (*domain.HomeworkWeek, error)
	Forget(ctx context.Context, userID int64) error
}

// Users persists user records.
type Users interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// Preference names one of the boolean user settings.
type Preference int

const (
	// DeliverWeekly switches between whole-week and next-day output.
	DeliverWeekly Preference = iota
	// Notify controls whether replies make a sound.
	Notify
	// HideLinks renders links behind their titles.
	HideLinks
)

// Session is one user's state. Methods are safe for concurrent use;
// concurrent preference changes are last-writer-wins.
type Session struct {
	mgr *Manager

	mu       sync.Mutex
	user     domain.User
	personID string
}

// User returns a copy of the session's user record.
func (s *Session) User() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// ID returns the Telegram user ID.
func (s *Session) ID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ID
}

// Preferences returns the current display preferences.
func (s *Session) Preferences() domain.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Preferences
}

// CheckToken reports whether the user has both a token and a student ID.
func (s *Session) CheckToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.HasToken()
}

func (s *Session) credentials() (token string, studentID int64, personID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Token, s.user.StudentID, s.personID
}

// GetHomework returns the homework week containing date, served from the
// cache while fresh. Portal errors are returned unchanged.
func (s *Session) GetHomework(ctx context.Context, date time.Time) (*domain.HomeworkWeek, error) {
	token, studentID, _ := s.credentials()
	if token == "" {
		return nil, domain.ErrNoToken
	}
	userID := s.ID()
	window := calendar.WeekOf(date)

	cached, err := s.mgr.cache.Lookup(ctx, userID)
	if err != nil {
		s.mgr.logger.Warn("Homework cache lookup failed", "user_id", userID, "error", err)
	} else if cached != nil && sameDay(cached.WindowStart, window.Start) {
		return cached, nil
	}

	raw, err := s.mgr.portal.FetchHomework(ctx, token, studentID, date)
	if err != nil {
		return nil, err
	}
	if studentID == 0 && raw.StudentID != 0 {
		s.rememberStudentID(token, raw.StudentID)
	}

	week, err := transform.Homework(raw, s.mgr.logger)
	if err != nil {
		return nil, err
	}

	stored, err := s.mgr.cache.Store(ctx, userID, week)
	if err != nil {
		// The fetched week is still good to show.
		s.mgr.logger.Error("Failed to cache homework", "user_id", userID, "error", err)
		week.OwnerID = userID
		week.FetchedAt = s.mgr.now()
		return week, nil
	}
	return stored, nil
}

// GetMarks returns the marks for the configured window around date.
func (s *Session) GetMarks(ctx context.Context, date time.Time) (*transform.MarksWeek, error) {
	token, studentID, _ := s.credentials()
	if token == "" {
		return nil, domain.ErrNoToken
	}

	raw, err := s.mgr.portal.FetchMarks(ctx, token, studentID, date)
	if err != nil {
		return nil, err
	}
	return transform.Marks(raw, s.mgr.logger)
}

// GetSchedule returns the timetable of the next school day after now.
func (s *Session) GetSchedule(ctx context.Context, now time.Time) (*transform.ScheduleWeek, error) {
	token, _, personID := s.credentials()
	if token == "" {
		return nil, domain.ErrNoToken
	}

	if personID == "" {
		id, err := s.mgr.portal.ResolvePersonID(ctx, token)
		if err != nil {
			return nil, err
		}
		personID = id
		s.mu.Lock()
		if s.user.Token == token {
			s.personID = id
		}
		s.mu.Unlock()
	}

	raw, err := s.mgr.portal.FetchSchedule(ctx, token, personID, now)
	if err != nil {
		return nil, err
	}
	return transform.Schedule(raw, s.mgr.logger)
}

func (s *Session) rememberStudentID(token string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user.Token == token && s.user.StudentID == 0 {
		s.user.StudentID = id
	}
}

// SetToken validates token, resolves the student it belongs to and saves
// both.
func (s *Session) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, tokenPrefix) || strings.ContainsAny(token, " \n\t") {
		return ErrInvalidToken
	}

	studentID, err := s.mgr.portal.ResolveStudentID(ctx, token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.user.Token = token
	s.user.StudentID = studentID
	s.personID = ""
	snapshot := s.user
	s.mu.Unlock()

	if err := s.mgr.users.UpsertUser(ctx, &snapshot); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.mgr.logger.Info("Token registered", "user_id", snapshot.ID, "student_id", studentID)
	return nil
}

// TogglePreference flips pref and returns the resulting preferences.
func (s *Session) TogglePreference(ctx context.Context, pref Preference) (domain.Preferences, error) {
	s.mu.Lock()
	switch pref {
	case DeliverWeekly:
		s.user.Preferences.DeliverWeekly = !s.user.Preferences.DeliverWeekly
	case Notify:
		s.user.Preferences.Notify = !s.user.Preferences.Notify
	case HideLinks:
		s.user.Preferences.HideLinks = !s.user.Preferences.HideLinks
	default:
		s.mu.Unlock()
		return domain.Preferences{}, fmt.Errorf("unknown preference %d", pref)
	}
	snapshot := s.user
	s.mu.Unlock()

	if err := s.mgr.users.UpsertUser(ctx, &snapshot); err != nil {
		return snapshot.Preferences, fmt.Errorf("save preferences: %w", err)
	}
	return snapshot.Preferences, nil
}

// SetDebug switches the admin debug keyboard.
func (s *Session) SetDebug(ctx context.Context, on bool) error {
	s.mu.Lock()
	s.user.Debug = on
	snapshot := s.user
	s.mu.Unlock()

	if err := s.mgr.users.UpsertUser(ctx, &snapshot); err != nil {
		return fmt.Errorf("save debug flag: %w", err)
	}
	return nil
}

// Delete removes the account and its cache reference.
func (s *Session) Delete(ctx context.Context) error {
	userID := s.ID()
	if err := s.mgr.cache.Forget(ctx, userID); err != nil {
		return err
	}
	s.mgr.drop(userID)
	s.mgr.logger.Info("User deleted", "user_id", userID)
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}
