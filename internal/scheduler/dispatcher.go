package scheduler

import (
	"context"
	"time"

	"outreach_backend/internal/tasks"
	"outreach_backend/platform/logger"
)

const (
	dispatchInterval = 5 * time.Second
	dispatchBatch    = 50
)

// PendingSource lists ledger tasks that still need a worker.
type PendingSource interface {
	GetPendingTasks(ctx context.Context, limit int) ([]tasks.Task, error)
}

// EnhancementDispatcher moves pending ledger tasks onto the asynq
// queue. Re-listing a task before a worker claims it is harmless, the
// queue deduplicates on the ledger ID.
type EnhancementDispatcher struct {
	client  *Client
	pending PendingSource
	log     *logger.Logger
}

func NewEnhancementDispatcher(client *Client, pending PendingSource, log *logger.Logger) *EnhancementDispatcher {
	return &EnhancementDispatcher{
		client:  client,
		pending: pending,
		log:     log,
	}
}

func (d *EnhancementDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := d.pending.GetPendingTasks(ctx, dispatchBatch)
		if err != nil {
			d.log.Warn("pending task listing failed", "error", err)
			continue
		}

		for _, task := range pending {
			err := d.client.EnqueueEnhancement(ctx, EnhancementRunPayload{
				TaskID: task.ID.String(),
				Kind:   string(task.Kind),
			})
			if err != nil {
				d.log.Warn("failed to enqueue task", "task_id", task.ID, "error", err)
			}
		}
	}
}
