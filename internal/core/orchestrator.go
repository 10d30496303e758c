package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskgate-io/taskgate/pkg/models"
)

// OrchestratorOpts configures gating behavior explicitly per instance, so
// tests can tune enforcement without touching process-wide state.
type OrchestratorOpts struct {
	// EnforcedStates lists states whose checklists block leaving them. The
	// REVIEWING to READY_TO_COMMIT boundary is enforced unconditionally.
	EnforcedStates []models.WorkflowState
	// MinStateDwell is the minimum time in a state before advancing out of
	// it. Zero disables rate limiting.
	MinStateDwell time.Duration
	// AutoActivateNext promotes the oldest queued task on completion.
	AutoActivateNext bool
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// CreateTaskOpts carries optional settings for orchestrated task creation.
type CreateTaskOpts struct {
	Priority     models.Priority
	Requirements []string
	// Activate forces the new task ACTIVE, demoting any current active task.
	Activate bool
}

// Orchestrator composes transition legality, checklist gating, and
// persistence into atomic units of work. Every mutation runs its
// read-modify-write cycle under the queue lock, then projects the result
// into the derived file.
type Orchestrator interface {
	CreateTask(goal string, opts CreateTaskOpts) (*models.Task, error)
	// UpdateState advances the active task to the target state. Warnings
	// carry non-fatal side-effect outcomes (e.g. a failed automated review
	// pass).
	UpdateState(target models.WorkflowState) (task *models.Task, warnings []string, err error)
	CompleteTask() (completed, next *models.Task, err error)
	ActivateTask(taskID string) (*models.Task, error)
	ArchiveTask(taskID string) (*models.Task, error)
	// CurrentTask resolves the active task, transparently regenerating the
	// derived file if it is missing or has drifted from the queue.
	CurrentTask() (*models.Task, *models.TaskSnapshot, error)
	CompleteChecklistItem(state models.WorkflowState, itemID string, evidence *models.Evidence) (*models.Task, error)
	ListTasks(filter QueueListFilter) ([]*models.Task, error)
}

type orchestrator struct {
	queue    QueueStore
	sync     SnapshotSync
	gate     *ChecklistGate
	reviewer ReviewRunner
	guidance ContextUpdater
	events   EventLogger
	opts     OrchestratorOpts
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. guidance and events may be nil;
// reviewer nil falls back to the built-in runner.
func NewOrchestrator(queue QueueStore, sync SnapshotSync, gate *ChecklistGate, reviewer ReviewRunner, guidance ContextUpdater, events EventLogger, opts OrchestratorOpts) Orchestrator {
	if reviewer == nil {
		reviewer = NewDefaultReviewRunner()
	}
	now := opts.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &orchestrator{
		queue:    queue,
		sync:     sync,
		gate:     gate,
		reviewer: reviewer,
		guidance: guidance,
		events:   events,
		opts:     opts,
		now:      now,
	}
}

// stateEnforced decides whether the checklist of the state being left blocks
// the transition. The REVIEWING boundary is always load-bearing.
func (o *orchestrator) stateEnforced(from, to models.WorkflowState) bool {
	if from == models.StateReviewing && to == models.StateReadyToCommit {
		return true
	}
	for _, s := range o.opts.EnforcedStates {
		if s == from {
			return true
		}
	}
	return false
}

// UpdateState advances the active task one state forward: resolve, rate
// limit, validate the transition, gate on the outgoing checklist, record
// history, persist, sync, then run non-fatal side effects and notify.
func (o *orchestrator) UpdateState(target models.WorkflowState) (*models.Task, []string, error) {
	var (
		updated  *models.Task
		original *models.Task
		warnings []string
	)

	_, err := o.queue.Mutate(func(q *models.Queue) error {
		task := q.ActiveTask()
		if task == nil {
			return models.ErrNoActiveTask
		}

		now := o.now()
		if o.opts.MinStateDwell > 0 {
			dwell := now.Sub(task.Workflow.StateEnteredAt)
			if dwell < o.opts.MinStateDwell {
				return &models.RateLimitError{
					State:     task.Workflow.CurrentState,
					Remaining: o.opts.MinStateDwell - dwell,
				}
			}
		}

		current := task.Workflow.CurrentState
		if err := ValidateStateTransition(current, target); err != nil {
			return err
		}
		if err := o.gate.ValidateStateChecklistComplete(task, current, o.stateEnforced(current, target)); err != nil {
			return err
		}

		// Keep a pristine copy for compensation if the derived-file sync
		// fails after this save commits.
		var cloneErr error
		original, cloneErr = cloneTask(task)
		if cloneErr != nil {
			return cloneErr
		}

		task.Workflow.StateHistory = append(task.Workflow.StateHistory, models.StateHistoryEntry{
			State:     current,
			EnteredAt: task.Workflow.StateEnteredAt,
		})
		task.Workflow.CurrentState = target
		task.Workflow.StateEnteredAt = now

		// Side effects: never roll back the transition itself.
		o.gate.InitChecklist(task, target)
		if target == models.StateReviewing {
			warnings = append(warnings, o.runReviewPass(task)...)
		}

		updated = task
		return nil
	})
	if err != nil {
		o.logEvent("gate.rejected", "state update rejected", map[string]any{"target": string(target), "error": err.Error()})
		return nil, nil, err
	}

	if err := o.syncOrRevert(updated, original); err != nil {
		return nil, nil, err
	}

	o.logEvent("task.state_changed", fmt.Sprintf("task %s entered %s", updated.ID, target), map[string]any{
		"taskId": updated.ID,
		"from":   string(original.Workflow.CurrentState),
		"to":     string(target),
	})
	o.notify(updated, warnings)
	return updated, warnings, nil
}

// runReviewPass attempts the automated validation on REVIEWING entry. A
// failed pass leaves the well-known item open and downgrades to a warning.
func (o *orchestrator) runReviewPass(task *models.Task) []string {
	passed, summary := o.reviewer.Run(task)
	if !passed {
		return []string{fmt.Sprintf("automated validation found issues: %s", summary)}
	}
	err := o.gate.MarkItemComplete(task, models.StateReviewing, AutomatedValidationItemID, &models.Evidence{
		Type:        models.EvidenceManual,
		Description: "automated validation pass",
		ManualNotes: summary,
	})
	if err != nil {
		return []string{fmt.Sprintf("automated validation passed but could not be recorded: %v", err)}
	}
	return nil
}

// syncOrRevert projects the task into the derived file; if the sync (and
// its internal backup rollback) fails, the queue record is restored to its
// pre-transition state so the two representations never diverge silently.
func (o *orchestrator) syncOrRevert(updated, original *models.Task) error {
	_, syncErr := o.sync.SyncFromQueue(updated)
	if syncErr == nil {
		return nil
	}

	_, revertErr := o.queue.Mutate(func(q *models.Queue) error {
		task := q.FindTask(updated.ID)
		if task == nil {
			return &models.NotFoundError{TaskID: updated.ID}
		}
		task.Workflow = original.Workflow
		task.Checklists = original.Checklists
		task.ReviewChecklist = original.ReviewChecklist
		return nil
	})
	o.logEvent("sync.rolled_back", "derived file sync failed; queue record reverted", map[string]any{
		"taskId": updated.ID,
		"error":  syncErr.Error(),
	})
	if revertErr != nil {
		return fmt.Errorf("syncing derived file failed: %w (queue revert also failed: %v)", syncErr, revertErr)
	}
	return fmt.Errorf("syncing derived file failed, queue record reverted: %w", syncErr)
}

// CreateTask validates and persists a new task, auto-assigning QUEUED or
// ACTIVE per the single active task invariant, initializes the
// UNDERSTANDING checklist, and syncs the derived file if the task became
// active.
func (o *orchestrator) CreateTask(goal string, opts CreateTaskOpts) (*models.Task, error) {
	priority := opts.Priority
	if priority == "" {
		priority = InferPriority(goal)
	}

	created, err := o.queue.CreateTask(goal, QueueCreateOpts{
		Priority:     priority,
		Requirements: opts.Requirements,
		Activate:     opts.Activate,
	})
	if err != nil {
		return nil, err
	}

	var task *models.Task
	_, err = o.queue.Mutate(func(q *models.Queue) error {
		task = q.FindTask(created.ID)
		if task == nil {
			return &models.NotFoundError{TaskID: created.ID}
		}
		o.gate.InitChecklist(task, models.StateUnderstanding)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initializing checklist: %w", err)
	}

	o.logEvent("task.created", fmt.Sprintf("task %s created", task.ID), map[string]any{
		"taskId":   task.ID,
		"status":   string(task.QueueStatus),
		"priority": string(task.Priority),
	})

	if task.QueueStatus == models.StatusActive {
		if _, err := o.sync.SyncFromQueue(task); err != nil {
			return nil, err
		}
		o.notify(task, nil)
	}
	return task, nil
}

// CompleteTask completes the active task. The READY_TO_COMMIT guard runs
// inside the queue store's locked mutation.
func (o *orchestrator) CompleteTask() (*models.Task, *models.Task, error) {
	active, err := o.queue.ActiveTask()
	if err != nil {
		return nil, nil, err
	}

	completed, next, err := o.queue.CompleteTask(active.ID, o.opts.AutoActivateNext)
	if err != nil {
		return nil, nil, err
	}

	o.logEvent("task.completed", fmt.Sprintf("task %s completed", completed.ID), map[string]any{"taskId": completed.ID})

	// The derived file follows the new active task, or records the
	// completion when the queue drained.
	syncTarget := completed
	if next != nil {
		syncTarget = next
		o.logEvent("task.activated", fmt.Sprintf("task %s auto-activated", next.ID), map[string]any{"taskId": next.ID})
	}
	if _, err := o.sync.SyncFromQueue(syncTarget); err != nil {
		return nil, nil, err
	}
	o.notify(syncTarget, nil)
	return completed, next, nil
}

// ActivateTask promotes a queued task, demoting any current active task.
func (o *orchestrator) ActivateTask(taskID string) (*models.Task, error) {
	task, err := o.queue.ActivateTask(taskID)
	if err != nil {
		return nil, err
	}
	o.logEvent("task.activated", fmt.Sprintf("task %s activated", task.ID), map[string]any{"taskId": task.ID})
	if _, err := o.sync.SyncFromQueue(task); err != nil {
		return nil, err
	}
	o.notify(task, nil)
	return task, nil
}

// ArchiveTask retires a task permanently. Archived tasks are retained for
// audit and excluded from auto-activation.
func (o *orchestrator) ArchiveTask(taskID string) (*models.Task, error) {
	task, err := o.queue.ArchiveTask(taskID)
	if err != nil {
		return nil, err
	}
	o.logEvent("task.archived", fmt.Sprintf("task %s archived", task.ID), map[string]any{"taskId": task.ID})
	return task, nil
}

// CurrentTask resolves the active task and its derived snapshot. A missing
// derived file is transparently regenerated; a hand-edited one is detected
// and overwritten from the queue, which is always authoritative.
func (o *orchestrator) CurrentTask() (*models.Task, *models.TaskSnapshot, error) {
	task, err := o.queue.ActiveTask()
	if err != nil {
		return nil, nil, err
	}

	snapshot, found, err := o.sync.LoadSnapshot()
	if err != nil {
		return nil, nil, err
	}
	if !found {
		regenerated, syncErr := o.sync.SyncFromQueue(task)
		if syncErr != nil {
			return nil, nil, fmt.Errorf("regenerating missing derived file: %w", syncErr)
		}
		o.logEvent("sync.drift_detected", "derived file was missing; regenerated from queue", map[string]any{"taskId": task.ID})
		return task, regenerated, nil
	}

	edited, err := o.sync.DetectManualEdit(task, snapshot)
	if err != nil {
		return nil, nil, err
	}
	if edited {
		resynced, syncErr := o.sync.SyncFromQueue(task)
		if syncErr != nil {
			return nil, nil, fmt.Errorf("repairing drifted derived file: %w", syncErr)
		}
		o.logEvent("sync.drift_detected", "derived file drifted from queue; resynced", map[string]any{"taskId": task.ID})
		return task, resynced, nil
	}
	return task, snapshot, nil
}

// CompleteChecklistItem marks an item complete on the active task and
// persists both representations.
func (o *orchestrator) CompleteChecklistItem(state models.WorkflowState, itemID string, evidence *models.Evidence) (*models.Task, error) {
	var updated *models.Task
	_, err := o.queue.Mutate(func(q *models.Queue) error {
		task := q.ActiveTask()
		if task == nil {
			return models.ErrNoActiveTask
		}
		if err := o.gate.MarkItemComplete(task, state, itemID, evidence); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := o.sync.SyncFromQueue(updated); err != nil {
		return nil, err
	}
	o.notify(updated, nil)
	return updated, nil
}

// ListTasks returns tasks matching the filter, oldest first.
func (o *orchestrator) ListTasks(filter QueueListFilter) ([]*models.Task, error) {
	return o.queue.ListTasks(filter)
}

// notify invokes the guidance collaborator with the freshly persisted
// state. Failures are logged, never fatal.
func (o *orchestrator) notify(task *models.Task, warnings []string) {
	if o.guidance == nil {
		return
	}
	err := o.guidance.Update(GuidanceUpdate{
		Snapshot: models.SnapshotFromTask(task, o.now()),
		Roles:    ActivateRoles(task.Goal, task.Requirements, task.Workflow.CurrentState),
		Warnings: warnings,
	})
	if err != nil {
		o.logEvent("guidance.failed", "guidance update failed", map[string]any{"error": err.Error()})
	}
}

func (o *orchestrator) logEvent(eventType, message string, data map[string]any) {
	if o.events != nil {
		o.events.LogEvent(eventType, message, data)
	}
}

// cloneTask deep-copies a task through its JSON form.
func cloneTask(t *models.Task) (*models.Task, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("cloning task: %w", err)
	}
	var clone models.Task
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("cloning task: %w", err)
	}
	return &clone, nil
}
