package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/shared"
)

type fakeRepo struct {
	mu       sync.Mutex
	weeks    map[int64]*domain.HomeworkWeek
	nextID   int64
	busy     int
	saves    int
	deleted  []int64
	getError error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{weeks: make(map[int64]*domain.HomeworkWeek)}
}

func (r *fakeRepo) GetHomework(_ context.Context, userID int64) (*domain.HomeworkWeek, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getError != nil {
		return nil, r.getError
	}
	w, ok := r.weeks[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *fakeRepo) SaveHomework(_ context.Context, userID int64, week *domain.HomeworkWeek, fetchedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.busy > 0 {
		r.busy--
		return 0, errors.New("database is locked")
	}
	r.nextID++
	cp := *week
	cp.ID = r.nextID
	cp.FetchedAt = fetchedAt
	r.weeks[userID] = &cp
	return cp.ID, nil
}

func (r *fakeRepo) DeleteUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.weeks, userID)
	r.deleted = append(r.deleted, userID)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(repo *fakeRepo) (*HomeworkCache, *clock) {
	clk := &clock{now: time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)}
	c := New(repo, nil,
		WithClock(clk.Now),
		WithRetry(shared.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}))
	return c, clk
}

func TestLookupEmpty(t *testing.T) {
	c, _ := newTestCache(newFakeRepo())
	week, err := c.Lookup(context.Background(), 1)
	if err != nil || week != nil {
		t.Errorf("Expected nil, nil for empty cache, got %v, %v", week, err)
	}
	state, _ := c.State(context.Background(), 1)
	if state != Empty {
		t.Errorf("Expected Empty, got %s", state)
	}
}

func TestFreshnessBoundary(t *testing.T) {
	repo := newFakeRepo()
	c, clk := newTestCache(repo)
	ctx := context.Background()

	stored, err := c.Store(ctx, 1, &domain.HomeworkWeek{})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if stored.ID == 0 || stored.OwnerID != 1 || !stored.FetchedAt.Equal(clk.Now()) {
		t.Errorf("Unexpected stored week: %+v", stored)
	}

	clk.Advance(FreshFor - time.Nanosecond)
	week, err := c.Lookup(ctx, 1)
	if err != nil || week == nil {
		t.Fatalf("Expected cached week just before the threshold, got %v, %v", week, err)
	}
	if state, _ := c.State(ctx, 1); state != Fresh {
		t.Errorf("Expected Fresh, got %s", state)
	}

	clk.Advance(time.Nanosecond)
	week, err = c.Lookup(ctx, 1)
	if err != nil || week != nil {
		t.Errorf("Expected nil exactly at the threshold, got %v, %v", week, err)
	}
	if state, _ := c.State(ctx, 1); state != Stale {
		t.Errorf("Expected Stale, got %s", state)
	}

	if _, err := c.Store(ctx, 1, &domain.HomeworkWeek{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if week, _ := c.Lookup(ctx, 1); week == nil {
		t.Error("Expected refresh to make the cache fresh again")
	}
}

func TestStoreRetriesWhenBusy(t *testing.T) {
	repo := newFakeRepo()
	repo.busy = 2
	c, _ := newTestCache(repo)

	if _, err := c.Store(context.Background(), 1, &domain.HomeworkWeek{}); err != nil {
		t.Fatalf("Expected Store to succeed after retries, got %v", err)
	}
	if repo.saves != 3 {
		t.Errorf("Expected 3 save attempts, got %d", repo.saves)
	}
}

func TestLookupPropagatesErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.getError = errors.New("disk I/O error")
	c, _ := newTestCache(repo)

	if _, err := c.Lookup(context.Background(), 1); !errors.Is(err, repo.getError) {
		t.Errorf("Expected repository error, got %v", err)
	}
}

func TestForget(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCache(repo)
	ctx := context.Background()

	_, _ = c.Store(ctx, 1, &domain.HomeworkWeek{})
	if err := c.Forget(ctx, 1); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if state, _ := c.State(ctx, 1); state != Empty {
		t.Errorf("Expected Empty after Forget, got %s", state)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != 1 {
		t.Errorf("Expected user 1 deleted, got %v", repo.deleted)
	}
}
