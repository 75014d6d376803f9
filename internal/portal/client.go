// Package portal provides an HTTP client for the school portal's homework,
// marks and schedule endpoints.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
)

const (
	homeworkPath = "/api/family/web/v1/homeworks"
	marksPath    = "/api/family/web/v1/marks"
	eventsPath   = "/api/eventcalendar/v1/api/events"
	sessionsPath = "/api/ej/acl/v1/sessions"
	profilePath  = "/acl/api/users/profile_info"

	dateLayout = "2006-01-02"

	maxErrorBodySize = 4 << 10
)

// MarksWindow selects which week FetchMarks queries.
type MarksWindow string

const (
	// MarksCurrentWeek queries the week of the given date.
	MarksCurrentWeek MarksWindow = "current"
	// MarksPreviousWeek queries the calendar week before it.
	MarksPreviousWeek MarksWindow = "previous"
)

// Config holds configuration for the portal client.
type Config struct {
	BaseURL     string
	ProfileURL  string
	Timeout     time.Duration
	MarksWindow MarksWindow
	HTTPClient  *http.Client
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://authedu.mosreg.ru",
		ProfileURL:  "https://myschool.mosreg.ru",
		Timeout:     10 * time.Second,
		MarksWindow: MarksCurrentWeek,
	}
}

// Client talks to the school portal. It keeps no per-user state.
type Client struct {
	baseURL     string
	profileURL  string
	marksWindow MarksWindow
	http        *http.Client
	logger      *slog.Logger
}

// New creates a portal client. Zero fields of cfg fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = def.ProfileURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MarksWindow == "" {
		cfg.MarksWindow = def.MarksWindow
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		profileURL:  strings.TrimRight(cfg.ProfileURL, "/"),
		marksWindow: cfg.MarksWindow,
		http:        httpClient,
		logger:      logger,
	}
}

// FetchHomework returns the raw homework for the week of date. A zero
// studentID is resolved from the token first.
func (c *Client) FetchHomework(ctx context.Context, token string, studentID int64, date time.Time) (*HomeworkResponse, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}

	window := calendar.WeekOf(date)
	c.logger.Debug("Fetching homework", "window_start", window.Start.Format(dateLayout), "window_end", window.End.Format(dateLayout))

	if studentID == 0 {
		id, err := c.ResolveStudentID(ctx, token)
		if err != nil {
			return nil, err
		}
		studentID = id
	}

	var resp HomeworkResponse
	err := c.do(ctx, request{
		method:  http.MethodGet,
		url:     c.baseURL + homeworkPath,
		token:   token,
		query:   windowQuery(window, studentID),
		cookies: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	resp.StudentID = studentID
	resp.WindowStart = window.Start
	resp.WindowEnd = window.End
	return &resp, nil
}

// FetchMarks returns the raw marks for the configured window relative to date.
func (c *Client) FetchMarks(ctx context.Context, token string, studentID int64, date time.Time) (*MarksResponse, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}

	window := calendar.WeekOf(date)
	if c.marksWindow == MarksPreviousWeek {
		window = calendar.PreviousWeekOf(date)
	}

	if studentID == 0 {
		id, err := c.ResolveStudentID(ctx, token)
		if err != nil {
			return nil, err
		}
		studentID = id
	}

	var resp MarksResponse
	err := c.do(ctx, request{
		method:  http.MethodGet,
		url:     c.baseURL + marksPath,
		token:   token,
		query:   windowQuery(window, studentID),
		cookies: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	resp.WindowStart = window.Start
	resp.WindowEnd = window.End
	return &resp, nil
}

// FetchSchedule returns the raw schedule for the week of the next school day
// after now. An empty personID is resolved from the token first.
func (c *Client) FetchSchedule(ctx context.Context, token, personID string, now time.Time) (*ScheduleResponse, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}

	if personID == "" {
		id, err := c.ResolvePersonID(ctx, token)
		if err != nil {
			return nil, err
		}
		personID = id
	}

	target := calendar.NextSchoolDay(now)
	window := calendar.WeekOf(target)

	query := url.Values{}
	query.Set("person_ids", personID)
	query.Set("begin_date", window.Start.Format(dateLayout))
	query.Set("end_date", window.End.Format(dateLayout))

	var resp ScheduleResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		url:    c.baseURL + eventsPath,
		token:  token,
		query:  query,
	}, &resp)
	if err != nil {
		return nil, err
	}

	resp.Target = target
	resp.WindowStart = window.Start
	resp.WindowEnd = window.End
	return &resp, nil
}

// ResolveStudentID looks up the student id bound to token.
func (c *Client) ResolveStudentID(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, domain.ErrNoToken
	}

	var profiles []profileInfo
	err := c.do(ctx, request{
		method:  http.MethodGet,
		url:     c.profileURL + profilePath,
		token:   token,
		headers: map[string]string{"Auth-Token": token},
	}, &profiles)
	if err != nil {
		return 0, err
	}
	if len(profiles) == 0 || profiles[0].ID == 0 {
		return 0, &domain.ServerError{StatusCode: http.StatusOK, Err: errors.New("profile info has no student id")}
	}
	return profiles[0].ID, nil
}

// ResolvePersonID looks up the person id the event calendar requires.
func (c *Client) ResolvePersonID(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrNoToken
	}

	var info sessionInfo
	err := c.do(ctx, request{
		method: http.MethodPost,
		url:    c.baseURL + sessionsPath,
		token:  token,
		body:   map[string]string{"auth_token": token},
	}, &info)
	if err != nil {
		return "", err
	}
	if info.PersonID == "" {
		return "", &domain.ServerError{StatusCode: http.StatusOK, Err: errors.New("session has no person id")}
	}
	return info.PersonID, nil
}

type request struct {
	method  string
	url     string
	token   string
	query   url.Values
	headers map[string]string
	body    any
	cookies bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := r.url
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, r.token)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.cookies {
		req.AddCookie(&http.Cookie{Name: "aupd_token", Value: r.token})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ServerError{Err: fmt.Errorf("request %s: %w", r.url, err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close portal response body", "error", closeErr)
		}
	}()

	if err := classify(resp); err != nil {
		c.logger.Warn("Portal request failed", "url", r.url, "status", resp.StatusCode)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ServerError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrExpiredToken
	case resp.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		var cause error
		if len(bytes.TrimSpace(msg)) > 0 {
			cause = errors.New(strings.TrimSpace(string(msg)))
		}
		return &domain.ServerError{StatusCode: resp.StatusCode, Err: cause}
	default:
		return nil
	}
}

func setHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36")
	req.Header.Set("X-Mes-Role", "student")
	req.Header.Set("X-mes-subsystem", "familyweb")
}

func windowQuery(w calendar.Window, studentID int64) url.Values {
	q := url.Values{}
	q.Set("from", w.Start.Format(dateLayout))
	q.Set("to", w.End.Format(dateLayout))
	q.Set("student_id", strconv.FormatInt(studentID, 10))
	return q
}
