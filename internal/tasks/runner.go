package tasks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Executor performs the work for one task kind and verifies its own
// output. Execute returns a result payload stored on the task; Verify
// inspects that payload and decides whether the task really succeeded.
type Executor interface {
	Kind() Kind
	Execute(ctx context.Context, task Task) (map[string]any, error)
	Verify(ctx context.Context, task Task, result map[string]any) Verification
}

// Runner drives pending ledger tasks through the full lifecycle:
// running, verifying, then completed or failed. Executors are
// registered per kind; a task whose kind has no executor fails rather
// than sitting pending forever.
type Runner struct {
	tracker     *Tracker
	executors   map[Kind]Executor
	log         *logger.Logger
	concurrency int
}

func NewRunner(tracker *Tracker, log *logger.Logger, cfg config.TasksConfig, executors ...Executor) *Runner {
	byKind := make(map[Kind]Executor, len(executors))
	for _, e := range executors {
		byKind[e.Kind()] = e
	}
	return &Runner{
		tracker:     tracker,
		executors:   byKind,
		log:         log,
		concurrency: cfg.GetTaskRunnerConcurrency(),
	}
}

// ProcessPending claims and executes up to limit pending tasks with
// bounded concurrency. Individual task failures are recorded on the
// ledger, not returned, so one bad task never stalls the batch.
func (r *Runner) ProcessPending(ctx context.Context, limit int) error {
	pending, err := r.tracker.GetPendingTasks(ctx, limit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, task := range pending {
		task := task
		g.Go(func() error {
			r.runTask(gctx, task)
			return nil
		})
	}
	return g.Wait()
}

// ProcessTask executes one task by ID. Used by the queue worker, where
// each queued job carries a single ledger task.
func (r *Runner) ProcessTask(ctx context.Context, id uuid.UUID) error {
	task, err := r.tracker.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != StatusPending {
		// Already claimed by a concurrent worker or a pending-batch run.
		r.log.Debug("task no longer pending, skipping", "task_id", id, "status", task.Status)
		return nil
	}
	r.runTask(ctx, task)
	return nil
}

// runTask moves one task through running, verifying and a terminal
// state. Losing the pending→running claim to a concurrent worker is
// silent; every other failure, executor panics included, is written to
// the task's error field so the task always reaches a terminal state.
func (r *Runner) runTask(ctx context.Context, task Task) {
	if err := r.tracker.UpdateStatus(ctx, task.ID, StatusRunning, nil, nil); err != nil {
		r.log.Debug("failed to claim task", "task_id", task.ID, "error", err)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("executor panicked", "task_id", task.ID, "kind", task.Kind, "panic", rec)
			r.fail(ctx, task.ID, fmt.Sprintf("executor panicked: %v", rec))
		}
	}()

	executor, ok := r.executors[task.Kind]
	if !ok {
		r.fail(ctx, task.ID, fmt.Sprintf("no executor registered for kind %q", task.Kind))
		return
	}

	result, err := executor.Execute(ctx, task)
	if err != nil {
		r.fail(ctx, task.ID, err.Error())
		return
	}

	if err := r.tracker.UpdateStatus(ctx, task.ID, StatusVerifying, result, nil); err != nil {
		r.log.Error("failed to advance task to verifying", "task_id", task.ID, "error", err)
		return
	}

	verification := executor.Verify(ctx, task, result)
	if err := r.tracker.SetVerification(ctx, task.ID, verification); err != nil {
		r.log.Error("failed to store verification", "task_id", task.ID, "error", err)
	}

	if !verification.Passed {
		r.fail(ctx, task.ID, describeFailedChecks(verification))
		return
	}

	if err := r.tracker.UpdateStatus(ctx, task.ID, StatusCompleted, nil, nil); err != nil {
		r.log.Error("failed to complete task", "task_id", task.ID, "error", err)
		return
	}
	r.log.Info("task completed", "task_id", task.ID, "kind", task.Kind)
}

func (r *Runner) fail(ctx context.Context, id uuid.UUID, reason string) {
	if err := r.tracker.UpdateStatus(ctx, id, StatusFailed, nil, &reason); err != nil {
		r.log.Error("failed to mark task failed", "task_id", id, "error", err)
		return
	}
	r.log.Warn("task failed", "task_id", id, "reason", reason)
}

func describeFailedChecks(v Verification) string {
	for _, check := range v.Checks {
		if !check.Passed {
			if check.Issue != "" {
				return fmt.Sprintf("verification failed: %s: %s", check.Name, check.Issue)
			}
			return fmt.Sprintf("verification failed: %s", check.Name)
		}
	}
	return "verification failed"
}
