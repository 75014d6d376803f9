package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mesbot/mesbot/internal/domain"
	_ "modernc.org/sqlite"
)

const userColumns = `user_id, username, token, student_id, deliver_weekly, notify,
	hide_links, debug, homework_id, created_at, updated_at`

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLite creates a new SQLite-backed repository. Dates read back from the
// homework cache are placed in loc.
func NewSQLite(dbPath string, loc *time.Location) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	// WAL for concurrent readers; foreign keys for the homework reference.
	// Write transactions take the lock at BEGIN so concurrent writers queue on
	// busy_timeout instead of failing when their read snapshot goes stale.
	dsn := dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, loc: loc}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS homework_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		content_hash TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		fetched_at INTEGER NOT NULL, -- unix milliseconds
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_homework_fetched ON homework_cache(fetched_at);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		token TEXT,
		student_id INTEGER,
		deliver_weekly INTEGER NOT NULL DEFAULT 0,
		notify INTEGER NOT NULL DEFAULT 1,
		hide_links INTEGER NOT NULL DEFAULT 1,
		debug INTEGER NOT NULL DEFAULT 0,
		homework_id INTEGER REFERENCES homework_cache(id) ON DELETE SET NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_homework ON users(homework_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var token sql.NullString
	var studentID, homeworkID sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.Username, &token, &studentID,
		&user.Preferences.DeliverWeekly, &user.Preferences.Notify, &user.Preferences.HideLinks,
		&user.Debug, &homeworkID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Token = token.String
	user.StudentID = studentID.Int64
	user.HomeworkID = homeworkID.Int64
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, token, student_id, deliver_weekly, notify,
		hide_links, debug, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		token = excluded.token,
		student_id = excluded.student_id,
		deliver_weekly = excluded.deliver_weekly,
		notify = excluded.notify,
		hide_links = excluded.hide_links,
		debug = excluded.debug,
		updated_at = excluded.updated_at`

	var token, studentID any
	if user.Token != "" {
		token = user.Token
	}
	if user.StudentID != 0 {
		studentID = user.StudentID
	}

	now := time.Now()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, token, studentID,
		user.Preferences.DeliverWeekly, user.Preferences.Notify, user.Preferences.HideLinks,
		user.Debug, createdAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// DeleteUser removes a user and garbage-collects their homework row if it
// became unreferenced.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var homeworkID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT homework_id FROM users WHERE user_id = ?`, userID).Scan(&homeworkID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read homework reference: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if homeworkID.Valid {
		if err := collectHomework(ctx, tx, homeworkID.Int64); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}

// ListUsers returns all users ordered by registration time.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close users rows", "error", closeErr)
		}
	}()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// GetHomework returns the homework week referenced by the user.
func (s *SQLiteStore) GetHomework(ctx context.Context, userID int64) (*domain.HomeworkWeek, error) {
	query := `
		SELECT h.id, h.content, h.fetched_at
		FROM users u JOIN homework_cache h ON h.id = u.homework_id
		WHERE u.user_id = ?`

	var id, fetchedAt int64
	var content string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id, &content, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan homework row: %w", err)
	}

	week, err := DecodeWeek([]byte(content), s.loc)
	if err != nil {
		return nil, err
	}
	week.ID = id
	week.OwnerID = userID
	week.FetchedAt = time.UnixMilli(fetchedAt)
	return week, nil
}

// SaveHomework upserts the week by content hash, points the user at the
// resulting row and drops the user's previous row if nothing references it
// anymore. All of it happens in one transaction.
func (s *SQLiteStore) SaveHomework(ctx context.Context, userID int64, week *domain.HomeworkWeek, fetchedAt time.Time) (int64, error) {
	content, hash, err := EncodeWeek(week)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save homework: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT homework_id FROM users WHERE user_id = ?`, userID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("save homework for %d: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read homework reference: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO homework_cache (window_start, window_end, content_hash, content, fetched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET fetched_at = excluded.fetched_at
		RETURNING id`,
		week.WindowStart.Unix(), week.WindowEnd.Unix(), hash, string(content),
		fetchedAt.UnixMilli(), time.Now().Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert homework: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET homework_id = ?, updated_at = ? WHERE user_id = ?`,
		id, time.Now().Unix(), userID)
	if err != nil {
		return 0, fmt.Errorf("update homework reference: %w", err)
	}

	if previous.Valid && previous.Int64 != id {
		if err := collectHomework(ctx, tx, previous.Int64); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save homework: %w", err)
	}
	return id, nil
}

// collectHomework deletes a homework row that no user references.
func collectHomework(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM homework_cache
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM users WHERE homework_id = ?)`, id, id)
	if err != nil {
		return fmt.Errorf("collect homework %d: %w", id, err)
	}
	return nil
}

// PruneHomework deletes homework rows fetched before olderThan. Users that
// referenced them fall back to an empty cache.
func (s *SQLiteStore) PruneHomework(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM homework_cache WHERE fetched_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune homework: %w", err)
	}
	return result.RowsAffected()
}

// Backup writes a snapshot of the database to path using VACUUM INTO. The
// snapshot is written next to path and renamed over it once complete.
func (s *SQLiteStore) Backup(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale backup: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		return fmt.Errorf("vacuum into backup: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace backup: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RestoreBackup copies backupPath to dbPath when the database file is missing
// and a backup exists. It reports whether a restore happened.
func RestoreBackup(dbPath, backupPath string) (bool, error) {
	if _, err := os.Stat(dbPath); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat database: %w", err)
	}

	src, err := os.Open(backupPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return false, fmt.Errorf("create database directory: %w", err)
	}
	dst, err := os.OpenFile(dbPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return false, fmt.Errorf("create database file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dbPath)
		return false, fmt.Errorf("copy backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return false, fmt.Errorf("close database file: %w", err)
	}
	return true, nil
}
