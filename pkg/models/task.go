package models

import "time"

// QueueStatus represents a task's position in the queue lifecycle.
type QueueStatus string

const (
	StatusQueued   QueueStatus = "QUEUED"
	StatusActive   QueueStatus = "ACTIVE"
	StatusDone     QueueStatus = "DONE"
	StatusArchived QueueStatus = "ARCHIVED"
)

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Task represents a unit of work moving through the workflow. At most one
// task in the whole queue has QueueStatus ACTIVE at any time.
type Task struct {
	ID           string       `json:"id"`
	Goal         string       `json:"goal"`
	QueueStatus  QueueStatus  `json:"queueStatus"`
	Priority     Priority     `json:"priority"`
	CreatedAt    time.Time    `json:"createdAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
	Workflow     Workflow     `json:"workflow"`
	Requirements []string     `json:"requirements,omitempty"`
	// Checklists holds per-state checklist snapshots keyed by workflow state.
	Checklists map[WorkflowState]*Checklist `json:"checklists,omitempty"`
	// ReviewChecklist mirrors Checklists[REVIEWING] for older consumers that
	// expect a single-slot field.
	ReviewChecklist *Checklist `json:"reviewChecklist,omitempty"`
}

// QueueMetadata holds aggregate counters derived from the task list.
// Counters are recomputed from the tasks on every save, never hand-maintained.
type QueueMetadata struct {
	TotalTasks     int       `json:"totalTasks"`
	QueuedCount    int       `json:"queuedCount"`
	ActiveCount    int       `json:"activeCount"`
	CompletedCount int       `json:"completedCount"`
	ArchivedCount  int       `json:"archivedCount"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Queue is the authoritative collection of all tasks. ActiveTaskID is empty
// iff no task has QueueStatus ACTIVE, and otherwise equals that task's ID.
type Queue struct {
	Tasks        []*Task       `json:"tasks"`
	ActiveTaskID string        `json:"activeTaskId,omitempty"`
	Metadata     QueueMetadata `json:"metadata"`
}

// RecomputeMetadata rebuilds the aggregate counters from the task list.
func (q *Queue) RecomputeMetadata(now time.Time) {
	md := QueueMetadata{TotalTasks: len(q.Tasks), LastUpdated: now}
	for _, t := range q.Tasks {
		switch t.QueueStatus {
		case StatusQueued:
			md.QueuedCount++
		case StatusActive:
			md.ActiveCount++
		case StatusDone:
			md.CompletedCount++
		case StatusArchived:
			md.ArchivedCount++
		}
	}
	q.Metadata = md
}

// FindTask returns the task with the given ID, or nil if absent.
func (q *Queue) FindTask(id string) *Task {
	for _, t := range q.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ActiveTask returns the task referenced by ActiveTaskID, or nil if the
// queue has no active task.
func (q *Queue) ActiveTask() *Task {
	if q.ActiveTaskID == "" {
		return nil
	}
	return q.FindTask(q.ActiveTaskID)
}
