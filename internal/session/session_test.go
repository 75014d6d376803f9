package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/portal"
)

var moscow = time.FixedZone("MSK", 3*60*60)

type fakePortal struct {
	mu          sync.Mutex
	calls       map[string]int
	homeworkErr error
	studentID   int64
	payload     []portal.HomeworkEntry
	marks       []portal.MarkEntry
}

func newFakePortal() *fakePortal {
	return &fakePortal{calls: make(map[string]int), studentID: 42}
}

func (p *fakePortal) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[name]++
}

func (p *fakePortal) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *fakePortal) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func (p *fakePortal) FetchHomework(_ context.Context, token string, studentID int64, date time.Time) (*portal.HomeworkResponse, error) {
	p.record("homework")
	if p.homeworkErr != nil {
		return nil, p.homeworkErr
	}
	w := calendar.WeekOf(date)
	if studentID == 0 {
		studentID = p.studentID
	}
	return &portal.HomeworkResponse{Payload: p.payload, StudentID: studentID, WindowStart: w.Start, WindowEnd: w.End}, nil
}

func (p *fakePortal) FetchMarks(_ context.Context, _ string, _ int64, date time.Time) (*portal.MarksResponse, error) {
	p.record("marks")
	w := calendar.WeekOf(date)
	return &portal.MarksResponse{Payload: p.marks, WindowStart: w.Start, WindowEnd: w.End}, nil
}

func (p *fakePortal) FetchSchedule(_ context.Context, _ string, personID string, now time.Time) (*portal.ScheduleResponse, error) {
	p.record("schedule")
	target := calendar.NextSchoolDay(now)
	w := calendar.WeekOf(target)
	return &portal.ScheduleResponse{Target: target, WindowStart: w.Start, WindowEnd: w.End}, nil
}

func (p *fakePortal) ResolveStudentID(context.Context, string) (int64, error) {
	p.record("student")
	return p.studentID, nil
}

func (p *fakePortal) ResolvePersonID(context.Context, string) (string, error) {
	p.record("person")
	return "person-1", nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int64]domain.User)}
}

func (f *fakeUsers) GetUser(_ context.Context, userID int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUsers) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUsers) ListUsers(context.Context) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.User
	for _, u := range f.users {
		u := u
		out = append(out, &u)
	}
	return out, nil
}

type fakeCache struct {
	mu      sync.Mutex
	weeks   map[int64]*domain.HomeworkWeek
	stores  int
	forgets []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{weeks: make(map[int64]*domain.HomeworkWeek)}
}

func (c *fakeCache) Lookup(_ context.Context, userID int64) (*domain.HomeworkWeek, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weeks[userID], nil
}

func (c *fakeCache) Store(_ context.Context, userID int64, week *domain.HomeworkWeek) (*domain.HomeworkWeek, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	cp := *week
	cp.ID = int64(c.stores)
	cp.OwnerID = userID
	c.weeks[userID] = &cp
	return &cp, nil
}

func (c *fakeCache) Forget(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.weeks, userID)
	c.forgets = append(c.forgets, userID)
	return nil
}

type fixture struct {
	portal *fakePortal
	users  *fakeUsers
	cache  *fakeCache
	mgr    *Manager
}

func newFixture() *fixture {
	f := &fixture{portal: newFakePortal(), users: newFakeUsers(), cache: newFakeCache()}
	f.mgr = NewManager(f.users, f.cache, f.portal, nil)
	return f
}

func (f *fixture) session(t *testing.T, token string) *Session {
	t.Helper()
	if token != "" {
		f.users.users[1] = domain.User{ID: 1, Username: "alice", Token: token, StudentID: 42, Preferences: domain.DefaultPreferences()}
	}
	s, err := f.mgr.Resolve(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return s
}

var wednesday = time.Date(2024, 9, 4, 12, 0, 0, 0, moscow)

func TestGetHomeworkWithoutTokenMakesNoCalls(t *testing.T) {
	f := newFixture()
	s := f.session(t, "")

	if s.CheckToken() {
		t.Fatal("Expected CheckToken to be false for a new user")
	}
	if _, err := s.GetHomework(context.Background(), wednesday); !errors.Is(err, domain.ErrNoToken) {
		t.Errorf("Expected ErrNoToken, got %v", err)
	}
	if _, err := s.GetMarks(context.Background(), wednesday); !errors.Is(err, domain.ErrNoToken) {
		t.Errorf("Expected ErrNoToken from GetMarks, got %v", err)
	}
	if _, err := s.GetSchedule(context.Background(), wednesday); !errors.Is(err, domain.ErrNoToken) {
		t.Errorf("Expected ErrNoToken from GetSchedule, got %v", err)
	}
	if n := f.portal.total(); n != 0 {
		t.Errorf("Expected zero portal calls, got %d", n)
	}
}

func TestGetHomeworkUsesCache(t *testing.T) {
	f := newFixture()
	f.portal.payload = []portal.HomeworkEntry{{Date: "2024-09-02", SubjectName: "Алгебра", Homework: "№ 1"}}
	s := f.session(t, "eyJhb.tok")
	ctx := context.Background()

	week, err := s.GetHomework(ctx, wednesday)
	if err != nil {
		t.Fatalf("GetHomework failed: %v", err)
	}
	if len(week.Days) != 5 || len(week.Days[0].Lessons) != 1 {
		t.Fatalf("Unexpected week: %+v", week)
	}

	again, err := s.GetHomework(ctx, wednesday)
	if err != nil {
		t.Fatalf("GetHomework failed: %v", err)
	}
	if again.ID != week.ID {
		t.Errorf("Expected the cached week, got id %d vs %d", again.ID, week.ID)
	}
	if n := f.portal.count("homework"); n != 1 {
		t.Errorf("Expected 1 homework fetch, got %d", n)
	}

	// A different window is a miss even when the cache is fresh.
	if _, err := s.GetHomework(ctx, wednesday.AddDate(0, 0, 7)); err != nil {
		t.Fatalf("GetHomework failed: %v", err)
	}
	if n := f.portal.count("homework"); n != 2 {
		t.Errorf("Expected a refetch for the next week, got %d fetches", n)
	}
}

func TestGetHomeworkPropagatesPortalErrors(t *testing.T) {
	for _, want := range []error{domain.ErrExpiredToken, &domain.ServerError{StatusCode: 502}} {
		f := newFixture()
		f.portal.homeworkErr = want
		s := f.session(t, "eyJhb.tok")

		_, err := s.GetHomework(context.Background(), wednesday)
		if err != want {
			t.Errorf("Expected error to be returned untouched, got %v", err)
		}
		if f.cache.stores != 0 {
			t.Errorf("Expected nothing cached on error, got %d stores", f.cache.stores)
		}
	}
}

func TestSetToken(t *testing.T) {
	f := newFixture()
	s := f.session(t, "")
	ctx := context.Background()

	for _, bad := range []string{"", "hello", "Bearer eyJhb", "eyJhb with spaces"} {
		if err := s.SetToken(ctx, bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("SetToken(%q): expected ErrInvalidToken, got %v", bad, err)
		}
	}
	if n := f.portal.total(); n != 0 {
		t.Errorf("Expected no portal calls for invalid tokens, got %d", n)
	}

	if err := s.SetToken(ctx, "  eyJhbGciOi.payload.sig \n"); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	if !s.CheckToken() {
		t.Error("Expected CheckToken to be true after SetToken")
	}
	stored := f.users.users[1]
	if stored.Token != "eyJhbGciOi.payload.sig" || stored.StudentID != 42 {
		t.Errorf("Expected token and student id persisted, got %+v", stored)
	}
}

func TestTogglePreference(t *testing.T) {
	f := newFixture()
	s := f.session(t, "")
	ctx := context.Background()

	defaults := s.Preferences()
	prefs, err := s.TogglePreference(ctx, DeliverWeekly)
	if err != nil {
		t.Fatalf("TogglePreference failed: %v", err)
	}
	if prefs.DeliverWeekly == defaults.DeliverWeekly {
		t.Error("Expected DeliverWeekly to flip")
	}
	if _, err := s.TogglePreference(ctx, HideLinks); err != nil {
		t.Fatalf("TogglePreference failed: %v", err)
	}
	if _, err := s.TogglePreference(ctx, Notify); err != nil {
		t.Fatalf("TogglePreference failed: %v", err)
	}

	stored := f.users.users[1].Preferences
	want := domain.Preferences{DeliverWeekly: !defaults.DeliverWeekly, Notify: !defaults.Notify, HideLinks: !defaults.HideLinks}
	if stored != want {
		t.Errorf("Expected persisted %+v, got %+v", want, stored)
	}

	if _, err := s.TogglePreference(ctx, Preference(99)); err == nil {
		t.Error("Expected error for unknown preference")
	}
}

func TestGetScheduleCachesPersonID(t *testing.T) {
	f := newFixture()
	s := f.session(t, "eyJhb.tok")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		week, err := s.GetSchedule(ctx, wednesday)
		if err != nil {
			t.Fatalf("GetSchedule failed: %v", err)
		}
		if calendar.ISOWeekday(week.Target) != 4 {
			t.Errorf("Expected Thursday target, got %s", week.Target.Weekday())
		}
	}
	if n := f.portal.count("person"); n != 1 {
		t.Errorf("Expected person id resolved once, got %d", n)
	}

	// A new token invalidates the cached person id.
	if err := s.SetToken(ctx, "eyJhb.other"); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	if _, err := s.GetSchedule(ctx, wednesday); err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}
	if n := f.portal.count("person"); n != 2 {
		t.Errorf("Expected person id resolved again, got %d", n)
	}
}

func TestGetMarksNoData(t *testing.T) {
	f := newFixture()
	s := f.session(t, "eyJhb.tok")

	marks, err := s.GetMarks(context.Background(), wednesday)
	if err != nil {
		t.Fatalf("GetMarks failed: %v", err)
	}
	if !marks.NoData {
		t.Error("Expected NoData for an empty payload")
	}
}

func TestManagerResolve(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s1, err := f.mgr.Resolve(ctx, 5, "bob")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	s2, _ := f.mgr.Resolve(ctx, 5, "bob")
	if s1 != s2 {
		t.Error("Expected the same session for the same user")
	}

	stored, ok := f.users.users[5]
	if !ok {
		t.Fatal("Expected new user to be persisted")
	}
	if stored.Preferences != domain.DefaultPreferences() {
		t.Errorf("Expected default preferences, got %+v", stored.Preferences)
	}

	if _, err := f.mgr.Resolve(ctx, 5, "robert"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := f.users.users[5].Username; got != "robert" {
		t.Errorf("Expected username update, got %q", got)
	}

	users, err := f.mgr.Users(ctx)
	if err != nil || len(users) != 1 {
		t.Errorf("Expected 1 user, got %d (%v)", len(users), err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture()
	s := f.session(t, "eyJhb.tok")
	ctx := context.Background()

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(f.cache.forgets) != 1 || f.cache.forgets[0] != 1 {
		t.Errorf("Expected cache.Forget(1), got %v", f.cache.forgets)
	}
	if _, ok := f.mgr.Get(1); ok {
		t.Error("Expected session to be dropped")
	}
}
