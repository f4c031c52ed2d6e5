package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	now   func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[uuid.UUID]*Task),
		now:   time.Now,
	}
}

func (m *memStore) CreateIfAbsent(_ context.Context, subjectID uuid.UUID, kind Kind, triggeredBy string, window time.Duration) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, t := range m.tasks {
		if t.SubjectID != subjectID || t.Kind != kind || t.Status == StatusFailed {
			continue
		}
		last := t.CreatedAt
		if t.CompletedAt != nil && t.CompletedAt.After(last) {
			last = *t.CompletedAt
		}
		if last.After(now.Add(-window)) {
			return uuid.Nil, false, nil
		}
	}
	id := uuid.New()
	m.tasks[id] = &Task{
		ID: id, SubjectID: subjectID, Kind: kind, Status: StatusPending,
		TriggeredBy: triggeredBy, CreatedAt: now, UpdatedAt: now,
	}
	return id, true, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *t, nil
}

func (m *memStore) GetPending(_ context.Context, limit int) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.Status == StatusPending {
			out = append(out, *t)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListForSubject(_ context.Context, subjectID uuid.UUID) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.SubjectID == subjectID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, p UpdateStatusParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[p.ID]
	if !ok || t.Status != p.From {
		return false, nil
	}
	now := m.now()
	t.Status = p.To
	if p.Result != nil {
		t.Result = p.Result
	}
	if p.Error != nil {
		t.Error = p.Error
	}
	switch {
	case p.To == StatusRunning:
		t.StartedAt = &now
	case p.To.IsTerminal():
		t.CompletedAt = &now
	}
	t.UpdatedAt = now
	return true, nil
}

func (m *memStore) SetVerification(_ context.Context, id uuid.UUID, v Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.Verification = &v
	return nil
}

func (m *memStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, t := range m.tasks {
		if t.Status.IsTerminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Status]int)
	for _, t := range m.tasks {
		out[t.Status]++
	}
	return out, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

type tasksConfig struct{}

func (tasksConfig) GetAntiWasteWindow() time.Duration { return 24 * time.Hour }
func (tasksConfig) GetTaskRunnerConcurrency() int     { return 4 }

func newTestTracker() (*Tracker, *memStore, *recordingBus) {
	store := newMemStore()
	bus := &recordingBus{}
	return NewTracker(store, bus, logger.New("development"), tasksConfig{}), store, bus
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestCreateTaskSuppressedWithinWindow(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()
	subject := uuid.New()

	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	id, created, err := tracker.CreateTask(ctx, subject, KindEnrichProfile, "test")
	if err != nil || !created || id == uuid.Nil {
		t.Fatalf("first create: id=%v created=%v err=%v", id, created, err)
	}

	// Same pair inside the window is a silent no-op.
	_, created, err = tracker.CreateTask(ctx, subject, KindEnrichProfile, "test")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("duplicate task created inside anti-waste window")
	}

	// A different kind for the same subject is not suppressed.
	_, created, err = tracker.CreateTask(ctx, subject, KindRefreshScore, "test")
	if err != nil || !created {
		t.Fatalf("different kind: created=%v err=%v", created, err)
	}

	// After the window elapses a new task is allowed.
	clock = clock.Add(25 * time.Hour)
	_, created, err = tracker.CreateTask(ctx, subject, KindEnrichProfile, "test")
	if err != nil || !created {
		t.Fatalf("post-window create: created=%v err=%v", created, err)
	}
}

func TestCreateTaskConcurrentProducersOneWinner(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()
	subject := uuid.New()

	const producers = 16
	var wg sync.WaitGroup
	results := make(chan bool, producers)
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := tracker.CreateTask(ctx, subject, KindEnrichProfile, "test")
			if err != nil {
				t.Errorf("concurrent create: %v", err)
				return
			}
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for created := range results {
		if created {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("%d producers created a task, want exactly 1", winners)
	}
}

func TestCreateTaskWindowAnchorsToCompletion(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()
	subject := uuid.New()

	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	id, _, err := tracker.CreateTask(ctx, subject, KindEmbedProfile, "test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Task runs for 20 hours before completing.
	mustTransition(t, tracker, id, StatusRunning)
	mustTransition(t, tracker, id, StatusVerifying)
	clock = clock.Add(20 * time.Hour)
	mustTransition(t, tracker, id, StatusCompleted)

	// 25h after creation but only 5h after completion: still suppressed.
	clock = clock.Add(5 * time.Hour)
	_, created, err := tracker.CreateTask(ctx, subject, KindEmbedProfile, "test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created {
		t.Fatal("window must anchor to completion time, not creation")
	}

	clock = clock.Add(20 * time.Hour)
	_, created, _ = tracker.CreateTask(ctx, subject, KindEmbedProfile, "test")
	if !created {
		t.Fatal("expected new task after completion window elapsed")
	}
}

func TestCreateTaskRejectsUnknownKind(t *testing.T) {
	tracker, _, _ := newTestTracker()
	_, _, err := tracker.CreateTask(context.Background(), uuid.New(), Kind("mystery"), "test")
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("got %v, want bad request", err)
	}
}

func TestUpdateStatusEnforcesMonotoneLifecycle(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	id, _, err := tracker.CreateTask(ctx, uuid.New(), KindEnrichProfile, "test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Skipping running is rejected.
	err = tracker.UpdateStatus(ctx, id, StatusVerifying, nil, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending→verifying: got %v, want ErrInvalidTransition", err)
	}
	err = tracker.UpdateStatus(ctx, id, StatusCompleted, nil, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending→completed: got %v, want ErrInvalidTransition", err)
	}

	mustTransition(t, tracker, id, StatusRunning)
	mustTransition(t, tracker, id, StatusVerifying)
	mustTransition(t, tracker, id, StatusCompleted)

	// Terminal states admit nothing.
	err = tracker.UpdateStatus(ctx, id, StatusRunning, nil, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed→running: got %v, want ErrInvalidTransition", err)
	}
}

func TestTerminalTransitionsPublishEvents(t *testing.T) {
	tracker, _, bus := newTestTracker()
	ctx := context.Background()

	id, _, _ := tracker.CreateTask(ctx, uuid.New(), KindEnrichProfile, "test")
	mustTransition(t, tracker, id, StatusRunning)
	reason := "collaborator down"
	if err := tracker.UpdateStatus(ctx, id, StatusFailed, nil, &reason); err != nil {
		t.Fatalf("fail: %v", err)
	}

	names := bus.names()
	if len(names) != 1 || names[0] != "tasks.task.failed" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestGetPendingTasksIsFIFO(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()

	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id, _, err := tracker.CreateTask(ctx, uuid.New(), KindRefreshScore, "test")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, id)
		clock = clock.Add(time.Minute)
	}

	pending, err := tracker.GetPendingTasks(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingTasks: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	for i, task := range pending {
		if task.ID != ids[i] {
			t.Fatalf("pending[%d] = %v, want %v (FIFO order)", i, task.ID, ids[i])
		}
	}
}

func TestCanTransitionTable(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusRunning},
		{StatusRunning, StatusVerifying},
		{StatusRunning, StatusFailed},
		{StatusVerifying, StatusCompleted},
		{StatusVerifying, StatusFailed},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("%s→%s should be allowed", pair[0], pair[1])
		}
	}

	rejected := [][2]Status{
		{StatusPending, StatusVerifying},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusRunning, StatusCompleted},
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusPending},
		{StatusVerifying, StatusRunning},
	}
	for _, pair := range rejected {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("%s→%s should be rejected", pair[0], pair[1])
		}
	}
}

func mustTransition(t *testing.T, tracker *Tracker, id uuid.UUID, to Status) {
	t.Helper()
	if err := tracker.UpdateStatus(context.Background(), id, to, nil, nil); err != nil {
		t.Fatalf("transition to %s: %v", to, err)
	}
}
