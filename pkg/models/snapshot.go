package models

import "time"

// LifecycleStatus is the flattened task status exposed in the derived
// snapshot file.
type LifecycleStatus string

const (
	LifecycleInProgress LifecycleStatus = "in_progress"
	LifecycleCompleted  LifecycleStatus = "completed"
)

// TaskSnapshot is the derived, consumer-facing projection of the active task
// (current-task.json). It is rebuilt from the Queue on every write and is
// never authoritative: external tools may read or even edit it, but the
// engine detects such edits and resyncs from the Queue rather than trusting
// the file.
type TaskSnapshot struct {
	ID           string          `json:"id"`
	Goal         string          `json:"goal"`
	Status       LifecycleStatus `json:"status"`
	Priority     Priority        `json:"priority"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Workflow     Workflow        `json:"workflow"`
	Requirements []string        `json:"requirements,omitempty"`

	Checklists      map[WorkflowState]*Checklist `json:"checklists,omitempty"`
	ReviewChecklist *Checklist                   `json:"reviewChecklist,omitempty"`

	// SyncedAt is the time the engine last wrote this file. Volatile:
	// excluded from drift hashing.
	SyncedAt time.Time `json:"syncedAt"`
}

// SnapshotFromTask builds the derived projection of a queue task.
func SnapshotFromTask(t *Task, now time.Time) *TaskSnapshot {
	status := LifecycleInProgress
	if t.QueueStatus == StatusDone || t.QueueStatus == StatusArchived {
		status = LifecycleCompleted
	}
	return &TaskSnapshot{
		ID:              t.ID,
		Goal:            t.Goal,
		Status:          status,
		Priority:        t.Priority,
		CreatedAt:       t.CreatedAt,
		CompletedAt:     t.CompletedAt,
		Workflow:        t.Workflow,
		Requirements:    t.Requirements,
		Checklists:      t.Checklists,
		ReviewChecklist: t.ReviewChecklist,
		SyncedAt:        now,
	}
}
