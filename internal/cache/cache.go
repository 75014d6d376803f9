// Package cache decides whether a user's stored homework week can be reused
// or has to be fetched again.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/shared"
)

// FreshFor is how long a stored week is served without refetching.
const FreshFor = time.Hour

// State is the freshness of a user's cached week.
type State int

const (
	// Empty means the user has no cached week.
	Empty State = iota
	// Fresh means the cached week is younger than FreshFor.
	Fresh
	// Stale means the cached week is at least FreshFor old.
	Stale
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Repository is the persistence the cache needs.
type Repository interface {
	GetHomework(ctx context.Context, userID int64) (*domain.HomeworkWeek, error)
	SaveHomework(ctx context.Context, userID int64, week *domain.HomeworkWeek, fetchedAt time.Time) (int64, error)
	DeleteUser(ctx context.Context, userID int64) error
}

// HomeworkCache is a freshness-gated view over stored homework weeks.
type HomeworkCache struct {
	repo   Repository
	now    func() time.Time
	retry  shared.RetryPolicy
	logger *slog.Logger
}

// Option configures a HomeworkCache.
type Option func(*HomeworkCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *HomeworkCache) { c.now = now }
}

// WithRetry sets the policy used when the database is busy.
func WithRetry(p shared.RetryPolicy) Option {
	return func(c *HomeworkCache) { c.retry = p }
}

// New creates a HomeworkCache over repo.
func New(repo Repository, logger *slog.Logger, opts ...Option) *HomeworkCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &HomeworkCache{
		repo:   repo,
		now:    time.Now,
		retry:  shared.DefaultRetryPolicy,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func stateOf(week *domain.HomeworkWeek, now time.Time) State {
	switch {
	case week == nil:
		return Empty
	case now.Sub(week.FetchedAt) < FreshFor:
		return Fresh
	default:
		return Stale
	}
}

// State reports the freshness of the user's cached week.
func (c *HomeworkCache) State(ctx context.Context, userID int64) (State, error) {
	week, err := c.repo.GetHomework(ctx, userID)
	if err != nil {
		return Empty, fmt.Errorf("load cached homework: %w", err)
	}
	return stateOf(week, c.now()), nil
}

// Lookup returns the user's cached week while it is fresh, and nil when the
// cache is empty or stale.
func (c *HomeworkCache) Lookup(ctx context.Context, userID int64) (*domain.HomeworkWeek, error) {
	week, err := c.repo.GetHomework(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cached homework: %w", err)
	}

	state := stateOf(week, c.now())
	c.logger.Debug("Homework cache lookup", "user_id", userID, "state", state.String())
	if state != Fresh {
		return nil, nil
	}
	return week, nil
}

// Store saves week as the user's cached homework, stamped with the current
// time. Identical content is shared with other users.
func (c *HomeworkCache) Store(ctx context.Context, userID int64, week *domain.HomeworkWeek) (*domain.HomeworkWeek, error) {
	fetchedAt := c.now()

	var id int64
	err := shared.RetryOnConflict(ctx, c.retry, "save homework", func() error {
		var err error
		id, err = c.repo.SaveHomework(ctx, userID, week, fetchedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store homework for %d: %w", userID, err)
	}

	stored := *week
	stored.ID = id
	stored.OwnerID = userID
	stored.FetchedAt = fetchedAt
	c.logger.Debug("Homework cached", "user_id", userID, "homework_id", id)
	return &stored, nil
}

// Forget deletes the user together with their cache reference. The cached
// row goes with it unless another user still shares it.
func (c *HomeworkCache) Forget(ctx context.Context, userID int64) error {
	err := shared.RetryOnConflict(ctx, c.retry, "delete user", func() error {
		return c.repo.DeleteUser(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("forget user %d: %w", userID, err)
	}
	return nil
}
