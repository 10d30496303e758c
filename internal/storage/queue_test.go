package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskgate-io/taskgate/pkg/models"
)

func newTestQueueManager(t *testing.T) *fileQueueManager {
	t.Helper()
	return NewQueueManager(t.TempDir()).(*fileQueueManager)
}

func mustCreate(t *testing.T, m *fileQueueManager, goal string, opts CreateTaskOpts) *models.Task {
	t.Helper()
	task, err := m.CreateTask(goal, opts)
	if err != nil {
		t.Fatalf("creating task: %v", err)
	}
	return task
}

// advanceToReadyToCommit walks a task's workflow to the terminal state
// directly through the store, bypassing gating, so completion tests can
// focus on the queue semantics.
func advanceToReadyToCommit(t *testing.T, m *fileQueueManager, taskID string) {
	t.Helper()
	_, err := m.Mutate(func(q *models.Queue) error {
		task := q.FindTask(taskID)
		task.Workflow.CurrentState = models.StateReadyToCommit
		return nil
	})
	if err != nil {
		t.Fatalf("advancing task: %v", err)
	}
}

func TestCreateTaskFirstBecomesActive(t *testing.T) {
	m := newTestQueueManager(t)

	task := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})
	if task.QueueStatus != models.StatusActive {
		t.Errorf("first task status = %s, want ACTIVE", task.QueueStatus)
	}
	if task.Workflow.CurrentState != models.StateUnderstanding {
		t.Errorf("initial state = %s, want UNDERSTANDING", task.Workflow.CurrentState)
	}

	q, err := m.Load()
	if err != nil {
		t.Fatalf("loading queue: %v", err)
	}
	if q.ActiveTaskID != task.ID {
		t.Errorf("ActiveTaskID = %q, want %q", q.ActiveTaskID, task.ID)
	}
}

func TestCreateTaskSecondIsQueued(t *testing.T) {
	m := newTestQueueManager(t)

	first := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})
	second := mustCreate(t, m, "write docs for the parser module", CreateTaskOpts{})

	if second.QueueStatus != models.StatusQueued {
		t.Errorf("second task status = %s, want QUEUED", second.QueueStatus)
	}
	q, _ := m.Load()
	if q.ActiveTaskID != first.ID {
		t.Errorf("ActiveTaskID = %q, want first task %q", q.ActiveTaskID, first.ID)
	}
}

func TestCreateTaskActivateDemotesCurrent(t *testing.T) {
	m := newTestQueueManager(t)

	first := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})
	second := mustCreate(t, m, "urgent hotfix for the release", CreateTaskOpts{Activate: true})

	if second.QueueStatus != models.StatusActive {
		t.Errorf("second task status = %s, want ACTIVE", second.QueueStatus)
	}

	q, _ := m.Load()
	if q.ActiveTaskID != second.ID {
		t.Errorf("ActiveTaskID = %q, want %q", q.ActiveTaskID, second.ID)
	}
	if got := q.FindTask(first.ID).QueueStatus; got != models.StatusQueued {
		t.Errorf("demoted task status = %s, want QUEUED", got)
	}
}

func TestCreateTaskGoalTooShort(t *testing.T) {
	m := newTestQueueManager(t)

	// Whitespace does not count towards the minimum.
	_, err := m.CreateTask("a b c d e    ", CreateTaskOpts{})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "goal" {
		t.Errorf("Field = %q, want goal", verr.Field)
	}
}

func TestCreateTaskDefaultPriority(t *testing.T) {
	m := newTestQueueManager(t)
	task := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})
	if task.Priority != models.PriorityMedium {
		t.Errorf("Priority = %s, want MEDIUM", task.Priority)
	}
}

func TestActivateTask(t *testing.T) {
	m := newTestQueueManager(t)

	first := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})
	second := mustCreate(t, m, "write docs for the parser module", CreateTaskOpts{})

	activated, err := m.ActivateTask(second.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activated.QueueStatus != models.StatusActive {
		t.Errorf("status = %s, want ACTIVE", activated.QueueStatus)
	}

	q, _ := m.Load()
	if got := q.FindTask(first.ID).QueueStatus; got != models.StatusQueued {
		t.Errorf("previous active status = %s, want QUEUED", got)
	}
	if q.Metadata.ActiveCount != 1 {
		t.Errorf("ActiveCount = %d, want 1", q.Metadata.ActiveCount)
	}
}

func TestActivateTaskNotFound(t *testing.T) {
	m := newTestQueueManager(t)
	_, err := m.ActivateTask("TG-missing0")
	var nf *models.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestActivateTaskRejectsNonQueued(t *testing.T) {
	m := newTestQueueManager(t)
	task := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})

	// Already ACTIVE.
	_, err := m.ActivateTask(task.ID)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCompleteTaskRequiresReadyToCommit(t *testing.T) {
	m := newTestQueueManager(t)
	task := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})

	_, _, err := m.CompleteTask(task.ID, false)
	var cerr *models.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompletionError, got %v", err)
	}
	if cerr.Current != models.StateUnderstanding {
		t.Errorf("Current = %s, want UNDERSTANDING", cerr.Current)
	}

	// Rejection must not change the queue.
	q, _ := m.Load()
	if got := q.FindTask(task.ID).QueueStatus; got != models.StatusActive {
		t.Errorf("status after rejected completion = %s, want ACTIVE", got)
	}
}

func TestCompleteTask(t *testing.T) {
	m := newTestQueueManager(t)
	task := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})
	advanceToReadyToCommit(t, m, task.ID)

	completed, next, err := m.CompleteTask(task.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed.QueueStatus != models.StatusDone {
		t.Errorf("status = %s, want DONE", completed.QueueStatus)
	}
	if completed.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if next != nil {
		t.Errorf("next = %v, want nil without auto-activation", next)
	}

	q, _ := m.Load()
	if q.ActiveTaskID != "" {
		t.Errorf("ActiveTaskID = %q, want empty", q.ActiveTaskID)
	}
}

func TestCompleteTaskAutoActivatesOldestQueued(t *testing.T) {
	m := newTestQueueManager(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	m.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})
	oldest := mustCreate(t, m, "write docs for the parser module", CreateTaskOpts{})
	mustCreate(t, m, "refactor the parser error paths", CreateTaskOpts{})
	advanceToReadyToCommit(t, m, first.ID)

	_, next, err := m.CompleteTask(first.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil || next.ID != oldest.ID {
		t.Fatalf("next = %v, want oldest queued task %s", next, oldest.ID)
	}

	q, _ := m.Load()
	if q.ActiveTaskID != oldest.ID {
		t.Errorf("ActiveTaskID = %q, want %q", q.ActiveTaskID, oldest.ID)
	}
	if q.Metadata.ActiveCount != 1 || q.Metadata.CompletedCount != 1 || q.Metadata.QueuedCount != 1 {
		t.Errorf("counts = active %d done %d queued %d, want 1 1 1",
			q.Metadata.ActiveCount, q.Metadata.CompletedCount, q.Metadata.QueuedCount)
	}
}

func TestArchiveTask(t *testing.T) {
	m := newTestQueueManager(t)
	task := mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})

	archived, err := m.ArchiveTask(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archived.QueueStatus != models.StatusArchived {
		t.Errorf("status = %s, want ARCHIVED", archived.QueueStatus)
	}

	// Archived tasks are retained, never deleted.
	q, _ := m.Load()
	if q.FindTask(task.ID) == nil {
		t.Fatal("archived task missing from queue")
	}
	if q.ActiveTaskID != "" {
		t.Errorf("ActiveTaskID = %q, want empty after archiving the active task", q.ActiveTaskID)
	}
}

func TestListTasksFilter(t *testing.T) {
	m := newTestQueueManager(t)

	mustCreate(t, m, "implement the new parser module", CreateTaskOpts{Priority: models.PriorityHigh})
	mustCreate(t, m, "write docs for the parser module", CreateTaskOpts{Requirements: []string{"REQ-7"}})
	mustCreate(t, m, "refactor the parser error paths", CreateTaskOpts{Priority: models.PriorityLow})

	queued, err := m.ListTasks(QueueFilter{Status: []models.QueueStatus{models.StatusQueued}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queued) != 2 {
		t.Errorf("queued count = %d, want 2", len(queued))
	}

	byReq, err := m.ListTasks(QueueFilter{Requirement: "REQ-7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byReq) != 1 || byReq[0].Requirements[0] != "REQ-7" {
		t.Errorf("requirement filter returned %d tasks, want 1", len(byReq))
	}

	byPrio, err := m.ListTasks(QueueFilter{Priority: []models.Priority{models.PriorityLow}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byPrio) != 1 {
		t.Errorf("priority filter returned %d tasks, want 1", len(byPrio))
	}
}

func TestActiveTaskNone(t *testing.T) {
	m := newTestQueueManager(t)
	_, err := m.ActiveTask()
	if !errors.Is(err, models.ErrNoActiveTask) {
		t.Fatalf("expected ErrNoActiveTask, got %v", err)
	}
}

func TestQueueFilePermissions(t *testing.T) {
	dir := t.TempDir()
	m := NewQueueManager(dir).(*fileQueueManager)
	mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})

	info, err := os.Stat(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("tasks.json permissions = %o, want 600", perm)
	}
}

// --- Malformed file coercion ---

func TestLoadMissingFileYieldsEmptyQueue(t *testing.T) {
	m := newTestQueueManager(t)
	q, err := m.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Tasks) != 0 || q.ActiveTaskID != "" {
		t.Errorf("expected empty queue, got %d tasks, active %q", len(q.Tasks), q.ActiveTaskID)
	}
}

func TestLoadCoercesMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	m := NewQueueManager(dir).(*fileQueueManager)
	if err := os.WriteFile(filepath.Join(dir, "tasks.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	q, err := m.Load()
	if err != nil {
		t.Fatalf("expected coercion, got error: %v", err)
	}
	if len(q.Tasks) != 0 {
		t.Errorf("expected empty queue from unparseable file, got %d tasks", len(q.Tasks))
	}
}

func TestLoadSkipsBadTaskFragments(t *testing.T) {
	dir := t.TempDir()
	m := NewQueueManager(dir).(*fileQueueManager)

	raw := `{
  "tasks": [
    {"id": "TG-good0001", "goal": "a valid task", "queueStatus": "QUEUED", "workflow": {"currentState": "DESIGNING"}},
    "not an object",
    {"goal": "missing id"},
    42
  ],
  "activeTaskId": null
}`
	if err := os.WriteFile(filepath.Join(dir, "tasks.json"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	q, err := m.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Tasks) != 1 || q.Tasks[0].ID != "TG-good0001" {
		t.Fatalf("expected only the valid task to survive, got %d tasks", len(q.Tasks))
	}
	if q.Tasks[0].Workflow.CurrentState != models.StateDesigning {
		t.Errorf("state = %s, want DESIGNING", q.Tasks[0].Workflow.CurrentState)
	}
}

func TestLoadCoercesMissingWorkflowState(t *testing.T) {
	dir := t.TempDir()
	m := NewQueueManager(dir).(*fileQueueManager)

	raw := `{"tasks": [{"id": "TG-nostate01", "goal": "missing workflow state", "queueStatus": "QUEUED"}]}`
	if err := os.WriteFile(filepath.Join(dir, "tasks.json"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	q, _ := m.Load()
	if q.Tasks[0].Workflow.CurrentState != models.StateUnderstanding {
		t.Errorf("coerced state = %s, want UNDERSTANDING", q.Tasks[0].Workflow.CurrentState)
	}
}

func TestLoadResetsNonStringActiveTaskID(t *testing.T) {
	dir := t.TempDir()
	m := NewQueueManager(dir).(*fileQueueManager)

	raw := `{"tasks": [], "activeTaskId": 42}`
	if err := os.WriteFile(filepath.Join(dir, "tasks.json"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	q, err := m.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.ActiveTaskID != "" {
		t.Errorf("ActiveTaskID = %q, want empty", q.ActiveTaskID)
	}
}

func TestLoadDemotesDuplicateActives(t *testing.T) {
	dir := t.TempDir()
	m := NewQueueManager(dir).(*fileQueueManager)

	raw := `{
  "tasks": [
    {"id": "TG-first0001", "goal": "first active", "queueStatus": "ACTIVE", "workflow": {"currentState": "TESTING"}},
    {"id": "TG-second001", "goal": "second active", "queueStatus": "ACTIVE", "workflow": {"currentState": "DESIGNING"}}
  ],
  "activeTaskId": "TG-second001"
}`
	if err := os.WriteFile(filepath.Join(dir, "tasks.json"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	q, err := m.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Metadata.ActiveCount != 1 {
		t.Fatalf("ActiveCount = %d, want 1", q.Metadata.ActiveCount)
	}
	// The first ACTIVE task wins; the pointer field follows it.
	if q.ActiveTaskID != "TG-first0001" {
		t.Errorf("ActiveTaskID = %q, want TG-first0001", q.ActiveTaskID)
	}
	if got := q.FindTask("TG-second001").QueueStatus; got != models.StatusQueued {
		t.Errorf("demoted status = %s, want QUEUED", got)
	}
}

func TestMutateRejectionLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	m := NewQueueManager(dir).(*fileQueueManager)
	mustCreate(t, m, "implement the new parser module", CreateTaskOpts{})

	before, err := os.ReadFile(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("mutation rejected")
	_, err = m.Mutate(func(q *models.Queue) error {
		q.Tasks = nil // would be destructive if saved
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	after, err := os.ReadFile(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("failed mutation changed the queue file")
	}
}
