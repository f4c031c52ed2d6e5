package tasks

import (
	"context"
	"time"

	"outreach_backend/platform/logger"
)

const (
	defaultCleanupInterval = time.Hour
	defaultLedgerRetention = 30 * 24 * time.Hour
)

// Cleanup periodically removes old finished ledger tasks. The window
// the anti-waste guard inspects is hours, so a retention of weeks never
// interferes with deduplication.
type Cleanup struct {
	store     Store
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewCleanup(store Store, log *logger.Logger, interval, retention time.Duration) *Cleanup {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if retention <= 0 {
		retention = defaultLedgerRetention
	}
	return &Cleanup{store: store, log: log, interval: interval, retention: retention}
}

func (c *Cleanup) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleanup) cleanup(ctx context.Context) {
	deleted, err := c.store.DeleteFinishedBefore(ctx, time.Now().Add(-c.retention))
	if err != nil {
		c.log.Warn("task ledger cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		c.log.Info("task ledger cleanup deleted finished tasks", "deleted", deleted)
	}
}
