package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskgate-io/taskgate/pkg/models"
)

const (
	queueFileName = "tasks.json"
	lockFileName  = "tasks.json.lock"

	// minGoalLength is the minimum number of non-whitespace characters a
	// task goal must contain.
	minGoalLength = 10
)

// taskIDPrefix prefixes every generated task identifier.
const taskIDPrefix = "TG"

// QueueFilter specifies criteria for listing tasks. All specified fields use
// AND logic.
type QueueFilter struct {
	Status      []models.QueueStatus
	Priority    []models.Priority
	Requirement string
}

// CreateTaskOpts carries optional settings for task creation.
type CreateTaskOpts struct {
	// Priority overrides inference from the goal text.
	Priority models.Priority
	// Requirements links external requirement identifiers to the task.
	Requirements []string
	// Activate forces the new task ACTIVE, demoting any current active
	// task back to QUEUED.
	Activate bool
}

// QueueManager defines the interface for the authoritative task queue store.
// All mutations run inside the cross-process file lock; reads tolerate
// slightly stale data and do not lock.
type QueueManager interface {
	Load() (*models.Queue, error)
	Save(q *models.Queue) error
	CreateTask(goal string, opts CreateTaskOpts) (*models.Task, error)
	ActivateTask(taskID string) (*models.Task, error)
	CompleteTask(taskID string, autoActivateNext bool) (completed, next *models.Task, err error)
	ArchiveTask(taskID string) (*models.Task, error)
	ListTasks(filter QueueFilter) ([]*models.Task, error)
	GetTask(taskID string) (*models.Task, error)
	ActiveTask() (*models.Task, error)
	// Mutate runs fn on the loaded queue under the lock and saves the
	// result if fn succeeds. The orchestrator uses it for state updates.
	Mutate(fn func(q *models.Queue) error) (*models.Queue, error)
	LockPath() string
}

type fileQueueManager struct {
	dir  string
	lock *FileLock
	now  func() time.Time
}

// NewQueueManager creates a QueueManager storing tasks.json in dir.
func NewQueueManager(dir string) QueueManager {
	return &fileQueueManager{
		dir:  dir,
		lock: NewFileLock(filepath.Join(dir, lockFileName)),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *fileQueueManager) queuePath() string {
	return filepath.Join(m.dir, queueFileName)
}

func (m *fileQueueManager) LockPath() string {
	return filepath.Join(m.dir, lockFileName)
}

// Load reads and validates the queue file. A missing file yields an empty,
// well-formed queue. A malformed file is coerced into a minimally valid
// shape rather than rejected: the derived file can always be resynced, and
// losing availability is worse than losing a malformed fragment.
func (m *fileQueueManager) Load() (*models.Queue, error) {
	data, err := os.ReadFile(m.queuePath())
	if err != nil {
		if os.IsNotExist(err) {
			return m.emptyQueue(), nil
		}
		return nil, fmt.Errorf("loading queue: %w", err)
	}
	return m.coerceQueue(data), nil
}

// looseQueue defers decoding of each field so one malformed fragment cannot
// reject the whole file.
type looseQueue struct {
	Tasks        []json.RawMessage `json:"tasks"`
	ActiveTaskID json.RawMessage   `json:"activeTaskId"`
}

func (m *fileQueueManager) emptyQueue() *models.Queue {
	q := &models.Queue{Tasks: []*models.Task{}}
	q.RecomputeMetadata(m.now())
	return q
}

func (m *fileQueueManager) coerceQueue(data []byte) *models.Queue {
	var raw looseQueue
	if err := json.Unmarshal(data, &raw); err != nil {
		return m.emptyQueue()
	}

	q := &models.Queue{Tasks: []*models.Task{}}
	for _, rt := range raw.Tasks {
		var t models.Task
		if err := json.Unmarshal(rt, &t); err != nil || t.ID == "" {
			continue
		}
		if t.Workflow.CurrentState == "" {
			t.Workflow.CurrentState = models.StateUnderstanding
		}
		q.Tasks = append(q.Tasks, &t)
	}

	// activeTaskId must be a string or null; anything else resets to null.
	if len(raw.ActiveTaskID) > 0 {
		var id string
		if err := json.Unmarshal(raw.ActiveTaskID, &id); err == nil {
			q.ActiveTaskID = id
		}
	}
	reconcileActive(q)
	q.RecomputeMetadata(m.now())
	return q
}

// reconcileActive restores the "activeTaskId is null iff no task is ACTIVE"
// invariant after loading possibly hand-edited data.
func reconcileActive(q *models.Queue) {
	active := ""
	for _, t := range q.Tasks {
		if t.QueueStatus == models.StatusActive {
			if active == "" {
				active = t.ID
			} else {
				// Two ACTIVE tasks: keep the first, demote the rest.
				t.QueueStatus = models.StatusQueued
			}
		}
	}
	q.ActiveTaskID = active
}

// Save recomputes metadata and writes the queue file restricted to
// owner-only permissions; task goals may be content the operator considers
// private.
func (m *fileQueueManager) Save(q *models.Queue) error {
	q.RecomputeMetadata(m.now())

	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("saving queue: creating directory: %w", err)
	}
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("saving queue: marshalling: %w", err)
	}
	if err := os.WriteFile(m.queuePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving queue: writing file: %w", err)
	}
	// WriteFile honors umask; force owner-only even if the file pre-existed.
	if err := os.Chmod(m.queuePath(), 0o600); err != nil {
		return fmt.Errorf("saving queue: restricting permissions: %w", err)
	}
	return nil
}

// Mutate loads the queue, applies fn, and saves, all inside the lock so the
// read-modify-write cycle is serialized across processes.
func (m *fileQueueManager) Mutate(fn func(q *models.Queue) error) (*models.Queue, error) {
	release, err := m.lock.Acquire()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	q, err := m.Load()
	if err != nil {
		return nil, err
	}
	if err := fn(q); err != nil {
		return nil, err
	}
	if err := m.Save(q); err != nil {
		return nil, err
	}
	return q, nil
}

// CreateTask validates the goal, assigns a queue status honoring the single
// active task invariant, and persists the new task.
func (m *fileQueueManager) CreateTask(goal string, opts CreateTaskOpts) (*models.Task, error) {
	if nonWhitespaceLen(goal) < minGoalLength {
		return nil, &models.ValidationError{
			Field:   "goal",
			Message: fmt.Sprintf("must contain at least %d non-whitespace characters: describe what the task should accomplish", minGoalLength),
		}
	}

	priority := opts.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	now := m.now()
	task := &models.Task{
		ID:           fmt.Sprintf("%s-%s", taskIDPrefix, uuid.NewString()[:8]),
		Goal:         strings.TrimSpace(goal),
		Priority:     priority,
		CreatedAt:    now,
		Requirements: opts.Requirements,
		Workflow: models.Workflow{
			CurrentState:   models.StateUnderstanding,
			StateEnteredAt: now,
			StateHistory:   []models.StateHistoryEntry{},
		},
	}

	_, err := m.Mutate(func(q *models.Queue) error {
		if q.ActiveTaskID == "" {
			task.QueueStatus = models.StatusActive
			q.ActiveTaskID = task.ID
		} else if opts.Activate {
			current := q.ActiveTask()
			if current != nil {
				current.QueueStatus = models.StatusQueued
			}
			task.QueueStatus = models.StatusActive
			q.ActiveTaskID = task.ID
		} else {
			task.QueueStatus = models.StatusQueued
		}
		q.Tasks = append(q.Tasks, task)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return task, nil
}

// ActivateTask promotes a QUEUED task to ACTIVE, demoting any currently
// active task back to QUEUED first.
func (m *fileQueueManager) ActivateTask(taskID string) (*models.Task, error) {
	var activated *models.Task
	_, err := m.Mutate(func(q *models.Queue) error {
		target := q.FindTask(taskID)
		if target == nil {
			return &models.NotFoundError{TaskID: taskID}
		}
		if target.QueueStatus != models.StatusQueued {
			return &models.ValidationError{
				Field:   "queueStatus",
				Message: fmt.Sprintf("task %s is %s: only QUEUED tasks can be activated", taskID, target.QueueStatus),
			}
		}
		if current := q.ActiveTask(); current != nil {
			current.QueueStatus = models.StatusQueued
		}
		target.QueueStatus = models.StatusActive
		q.ActiveTaskID = target.ID
		activated = target
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activating task: %w", err)
	}
	return activated, nil
}

// CompleteTask marks a task DONE, stamps its completion time, and clears the
// active slot. Completion is only legal from READY_TO_COMMIT; the guard runs
// inside the lock so a concurrent state change cannot slip past it. With
// autoActivateNext, the oldest remaining QUEUED task is promoted and
// returned as next.
func (m *fileQueueManager) CompleteTask(taskID string, autoActivateNext bool) (completed, next *models.Task, err error) {
	_, err = m.Mutate(func(q *models.Queue) error {
		target := q.FindTask(taskID)
		if target == nil {
			return &models.NotFoundError{TaskID: taskID}
		}
		if target.Workflow.CurrentState != models.StateReadyToCommit {
			return &models.CompletionError{Current: target.Workflow.CurrentState}
		}
		now := m.now()
		target.QueueStatus = models.StatusDone
		target.CompletedAt = &now
		if q.ActiveTaskID == target.ID {
			q.ActiveTaskID = ""
		}
		completed = target

		if autoActivateNext {
			if oldest := oldestQueued(q); oldest != nil {
				oldest.QueueStatus = models.StatusActive
				q.ActiveTaskID = oldest.ID
				next = oldest
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("completing task: %w", err)
	}
	return completed, next, nil
}

// ArchiveTask marks a task ARCHIVED. Archived tasks are retained for audit,
// never deleted, and are excluded from auto-activation.
func (m *fileQueueManager) ArchiveTask(taskID string) (*models.Task, error) {
	var archived *models.Task
	_, err := m.Mutate(func(q *models.Queue) error {
		target := q.FindTask(taskID)
		if target == nil {
			return &models.NotFoundError{TaskID: taskID}
		}
		target.QueueStatus = models.StatusArchived
		if q.ActiveTaskID == target.ID {
			q.ActiveTaskID = ""
		}
		archived = target
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archiving task: %w", err)
	}
	return archived, nil
}

func oldestQueued(q *models.Queue) *models.Task {
	var queued []*models.Task
	for _, t := range q.Tasks {
		if t.QueueStatus == models.StatusQueued {
			queued = append(queued, t)
		}
	}
	if len(queued) == 0 {
		return nil
	}
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	return queued[0]
}

// ListTasks returns tasks matching the filter, oldest first.
func (m *fileQueueManager) ListTasks(filter QueueFilter) ([]*models.Task, error) {
	q, err := m.Load()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	var result []*models.Task
	for _, t := range q.Tasks {
		if matchesQueueFilter(t, filter) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func matchesQueueFilter(t *models.Task, filter QueueFilter) bool {
	if len(filter.Status) > 0 && !containsStatus(filter.Status, t.QueueStatus) {
		return false
	}
	if len(filter.Priority) > 0 && !containsPriority(filter.Priority, t.Priority) {
		return false
	}
	if filter.Requirement != "" {
		found := false
		for _, r := range t.Requirements {
			if r == filter.Requirement {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsStatus(haystack []models.QueueStatus, needle models.QueueStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsPriority(haystack []models.Priority, needle models.Priority) bool {
	for _, p := range haystack {
		if p == needle {
			return true
		}
	}
	return false
}

// GetTask returns a single task by ID.
func (m *fileQueueManager) GetTask(taskID string) (*models.Task, error) {
	q, err := m.Load()
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", taskID, err)
	}
	t := q.FindTask(taskID)
	if t == nil {
		return nil, &models.NotFoundError{TaskID: taskID}
	}
	return t, nil
}

// ActiveTask returns the currently active task, or ErrNoActiveTask.
func (m *fileQueueManager) ActiveTask() (*models.Task, error) {
	q, err := m.Load()
	if err != nil {
		return nil, fmt.Errorf("getting active task: %w", err)
	}
	t := q.ActiveTask()
	if t == nil {
		return nil, models.ErrNoActiveTask
	}
	return t, nil
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !isSpace(r) {
			n++
		}
	}
	return n
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
