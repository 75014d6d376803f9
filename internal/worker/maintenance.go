// Package worker runs periodic database upkeep: pruning stale homework and
// taking backups.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mesbot/mesbot/internal/shared"
)

// shutdownBackupTimeout bounds the backup taken when the worker stops.
const shutdownBackupTimeout = 30 * time.Second

// Store is the part of the repository the worker maintains.
type Store interface {
	PruneHomework(ctx context.Context, olderThan time.Time) (int64, error)
	Backup(ctx context.Context, path string) error
}

// Config controls the maintenance schedule. A zero BackupInterval or an
// empty BackupPath disables backups.
type Config struct {
	Interval       time.Duration
	Retention      time.Duration
	BackupPath     string
	BackupInterval time.Duration
	Now            func() time.Time
}

// Maintenance prunes and backs up the store on a ticker.
type Maintenance struct {
	store      Store
	cfg        Config
	lastBackup time.Time
	logger     *slog.Logger
}

// NewMaintenance creates a worker. Call Start to run it.
func NewMaintenance(store Store, cfg Config, logger *slog.Logger) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Maintenance{store: store, cfg: cfg, lastBackup: cfg.Now(), logger: logger}
}

// Start runs the worker in the background until ctx is done. A final backup
// is taken on the way out. The returned channel closes once it has stopped.
func (m *Maintenance) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(m.cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		m.logger.Info("Maintenance worker started",
			"interval", m.cfg.Interval,
			"retention", m.cfg.Retention,
			"backup_interval", m.cfg.BackupInterval)

		for {
			select {
			case <-ticker.C:
				m.Sweep(ctx)
			case <-ctx.Done():
				m.logger.Info("Maintenance worker shutting down", "reason", ctx.Err())
				if m.backupsEnabled() {
					bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownBackupTimeout)
					m.backup(bctx)
					cancel()
				}
				return
			}
		}
	}()
	return done
}

// Sweep prunes homework older than the retention period and takes a backup
// when one is due.
func (m *Maintenance) Sweep(ctx context.Context) {
	now := m.cfg.Now()

	if m.cfg.Retention > 0 {
		var deleted int64
		err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "prune homework", func() error {
			var err error
			deleted, err = m.store.PruneHomework(ctx, now.Add(-m.cfg.Retention))
			return err
		})
		switch {
		case err != nil:
			m.logger.Error("Failed to prune homework cache", "error", err)
		case deleted > 0:
			m.logger.Info("Pruned homework cache", "count", deleted)
		}
	}

	if m.backupsEnabled() && now.Sub(m.lastBackup) >= m.cfg.BackupInterval {
		if m.backup(ctx) {
			m.lastBackup = now
		}
	}
}

func (m *Maintenance) backupsEnabled() bool {
	return m.cfg.BackupPath != "" && m.cfg.BackupInterval > 0
}

func (m *Maintenance) backup(ctx context.Context) bool {
	start := time.Now()
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "backup", func() error {
		return m.store.Backup(ctx, m.cfg.BackupPath)
	})
	if err != nil {
		m.logger.Error("Database backup failed", "path", m.cfg.BackupPath, "error", err)
		return false
	}
	m.logger.Info("Database backed up", "path", m.cfg.BackupPath, "duration", time.Since(start))
	return true
}
