package cache_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mesbot/mesbot/internal/cache"
	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/store"
)

func sharedWeek() *domain.HomeworkWeek {
	w := calendar.WeekOf(time.Date(2024, 9, 4, 12, 0, 0, 0, time.UTC))
	week := &domain.HomeworkWeek{WindowStart: w.Start, WindowEnd: w.End}
	for i, name := range calendar.SchoolDayNames() {
		week.Days = append(week.Days, domain.StudyDay{Name: name, Date: w.Start.AddDate(0, 0, i), Lessons: []domain.Lesson{}})
	}
	week.Days[2].Lessons = []domain.Lesson{{Subject: "Физика", Homework: "§ 12"}}
	return week
}

func TestConcurrentStoreSharesOneRow(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"), time.UTC)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	const users = 16
	for id := int64(1); id <= users; id++ {
		u := &domain.User{ID: id, Preferences: domain.DefaultPreferences()}
		if err := repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser(%d) failed: %v", id, err)
		}
	}

	c := cache.New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Store(ctx, int64(i+1), sharedWeek())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Store(%d) failed: %v", i+1, err)
		}
	}

	ids := make(map[int64]bool)
	for id := int64(1); id <= users; id++ {
		week, err := c.Lookup(ctx, id)
		if err != nil || week == nil {
			t.Fatalf("Lookup(%d): expected a fresh week, got %v (err %v)", id, week, err)
		}
		ids[week.ID] = true
	}
	if len(ids) != 1 {
		t.Errorf("Expected every user to share one row, got %d distinct ids", len(ids))
	}

	// Everything fetched so far is older than a cutoff in the future, so the
	// prune count is the number of rows in the table.
	rows, err := repo.PruneHomework(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneHomework failed: %v", err)
	}
	if rows != 1 {
		t.Errorf("Expected 1 homework row, got %d", rows)
	}
}
