package core

import (
	"github.com/taskgate-io/taskgate/pkg/models"
)

// QueueStore is the subset of storage.QueueManager the orchestrator needs.
// Defining it here keeps core independent of the storage package; app.go
// wires an adapter.
type QueueStore interface {
	CreateTask(goal string, opts QueueCreateOpts) (*models.Task, error)
	ActivateTask(taskID string) (*models.Task, error)
	CompleteTask(taskID string, autoActivateNext bool) (completed, next *models.Task, err error)
	ArchiveTask(taskID string) (*models.Task, error)
	ActiveTask() (*models.Task, error)
	GetTask(taskID string) (*models.Task, error)
	ListTasks(filter QueueListFilter) ([]*models.Task, error)
	// Mutate runs fn on the queue under the cross-process lock and persists
	// the result if fn succeeds.
	Mutate(fn func(q *models.Queue) error) (*models.Queue, error)
}

// QueueCreateOpts mirrors storage.CreateTaskOpts.
type QueueCreateOpts struct {
	Priority     models.Priority
	Requirements []string
	Activate     bool
}

// QueueListFilter mirrors storage.QueueFilter.
type QueueListFilter struct {
	Status      []models.QueueStatus
	Priority    []models.Priority
	Requirement string
}

// SnapshotSync is the subset of storage.Synchronizer the orchestrator needs.
type SnapshotSync interface {
	SyncFromQueue(task *models.Task) (*models.TaskSnapshot, error)
	// LoadSnapshot returns found=false when the derived file is missing,
	// which the read path treats as "resync", never as "no task".
	LoadSnapshot() (snapshot *models.TaskSnapshot, found bool, err error)
	DetectManualEdit(task *models.Task, snapshot *models.TaskSnapshot) (bool, error)
}

// EventLogger receives workflow events. Implementations must never fail the
// operation that emitted the event.
type EventLogger interface {
	LogEvent(eventType, message string, data map[string]any)
}

// ContextUpdater is the collaborator invoked after every successful
// mutation with the already-persisted snapshot. It produces the human/AI
// facing guidance document; its failure never rolls anything back.
type ContextUpdater interface {
	Update(update GuidanceUpdate) error
}

// ReviewRunner is the automated validation pass attempted on REVIEWING
// entry. Its failure only ever leaves the automated-validation checklist
// item incomplete; it never propagates into the orchestrator.
type ReviewRunner interface {
	Run(task *models.Task) (passed bool, summary string)
}
