package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"outreach_backend/platform/logger"
)

type stubExecutor struct {
	kind       Kind
	execErr    error
	execPanic  string
	result     map[string]any
	verifyFail bool
	executed   int
}

func (s *stubExecutor) Kind() Kind { return s.kind }

func (s *stubExecutor) Execute(_ context.Context, _ Task) (map[string]any, error) {
	s.executed++
	if s.execPanic != "" {
		panic(s.execPanic)
	}
	if s.execErr != nil {
		return nil, s.execErr
	}
	return s.result, nil
}

func (s *stubExecutor) Verify(_ context.Context, _ Task, _ map[string]any) Verification {
	if s.verifyFail {
		return Verification{Checks: []Check{{Name: "output_present", Issue: "empty output"}}}
	}
	return Verification{Passed: true, Checks: []Check{{Name: "output_present", Passed: true}}}
}

func newTestRunner(executors ...Executor) (*Runner, *Tracker, *memStore) {
	tracker, store, _ := newTestTracker()
	runner := NewRunner(tracker, logger.New("development"), tasksConfig{}, executors...)
	return runner, tracker, store
}

func TestRunnerCompletesTask(t *testing.T) {
	exec := &stubExecutor{kind: KindEnrichProfile, result: map[string]any{"fields": 3}}
	runner, tracker, _ := newTestRunner(exec)
	ctx := context.Background()

	id, _, err := tracker.CreateTask(ctx, uuid.New(), KindEnrichProfile, "test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := runner.ProcessPending(ctx, 10); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	task, _ := tracker.Get(ctx, id)
	if task.Status != StatusCompleted {
		t.Fatalf("status %s, want completed", task.Status)
	}
	if task.Verification == nil || !task.Verification.Passed {
		t.Fatalf("verification not recorded: %+v", task.Verification)
	}
	if task.Result["fields"] != 3 {
		t.Fatalf("result not stored: %v", task.Result)
	}
	if exec.executed != 1 {
		t.Fatalf("executor ran %d times", exec.executed)
	}
}

func TestRunnerFailsTaskOnExecuteError(t *testing.T) {
	exec := &stubExecutor{kind: KindEnrichProfile, execErr: errors.New("research api down")}
	runner, tracker, _ := newTestRunner(exec)
	ctx := context.Background()

	id, _, _ := tracker.CreateTask(ctx, uuid.New(), KindEnrichProfile, "test")
	if err := runner.ProcessPending(ctx, 10); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	task, _ := tracker.Get(ctx, id)
	if task.Status != StatusFailed {
		t.Fatalf("status %s, want failed", task.Status)
	}
	if task.Error == nil || *task.Error != "research api down" {
		t.Fatalf("error not recorded: %v", task.Error)
	}
}

func TestRunnerFailsTaskOnVerificationFailure(t *testing.T) {
	exec := &stubExecutor{kind: KindEmbedProfile, verifyFail: true}
	runner, tracker, _ := newTestRunner(exec)
	ctx := context.Background()

	id, _, _ := tracker.CreateTask(ctx, uuid.New(), KindEmbedProfile, "test")
	if err := runner.ProcessPending(ctx, 10); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	task, _ := tracker.Get(ctx, id)
	if task.Status != StatusFailed {
		t.Fatalf("status %s, want failed", task.Status)
	}
	if task.Verification == nil || task.Verification.Passed {
		t.Fatalf("verification should be recorded as failed: %+v", task.Verification)
	}
}

func TestRunnerFailsUnknownKind(t *testing.T) {
	runner, tracker, _ := newTestRunner() // no executors registered
	ctx := context.Background()

	id, _, _ := tracker.CreateTask(ctx, uuid.New(), KindRefreshScore, "test")
	if err := runner.ProcessPending(ctx, 10); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	task, _ := tracker.Get(ctx, id)
	if task.Status != StatusFailed {
		t.Fatalf("status %s, want failed", task.Status)
	}
}

func TestRunnerFailsTaskOnExecutorPanic(t *testing.T) {
	exec := &stubExecutor{kind: KindEnrichProfile, execPanic: "nil profile"}
	runner, tracker, _ := newTestRunner(exec)
	ctx := context.Background()

	id, _, _ := tracker.CreateTask(ctx, uuid.New(), KindEnrichProfile, "test")
	if err := runner.ProcessTask(ctx, id); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	task, _ := tracker.Get(ctx, id)
	if task.Status != StatusFailed {
		t.Fatalf("status %s, want failed", task.Status)
	}
	if task.Error == nil || !strings.Contains(*task.Error, "nil profile") {
		t.Fatalf("panic not recorded on task: %v", task.Error)
	}

	// The task is terminal, so a redelivered job must not rerun it.
	if err := runner.ProcessTask(ctx, id); err != nil {
		t.Fatalf("ProcessTask redelivery: %v", err)
	}
	if exec.executed != 1 {
		t.Fatalf("executor ran %d times, want 1", exec.executed)
	}
}

func TestProcessTaskSkipsNonPending(t *testing.T) {
	exec := &stubExecutor{kind: KindEnrichProfile}
	runner, tracker, _ := newTestRunner(exec)
	ctx := context.Background()

	id, _, _ := tracker.CreateTask(ctx, uuid.New(), KindEnrichProfile, "test")
	mustTransition(t, tracker, id, StatusRunning)

	if err := runner.ProcessTask(ctx, id); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if exec.executed != 0 {
		t.Fatal("executor must not run for an already claimed task")
	}
}
